package ctp_test

import (
	"bytes"
	"testing"

	"github.com/ctpnet/ctpsim/internal/ctp"
)

func TestBeaconFrameRoundTrip(t *testing.T) {
	want := ctp.BeaconFrame{
		Header: ctp.LinkHeader{Src: 1, Sink: ctp.BroadcastAddress, GainDBm10: -550, DurationMicros: 1024},
		Seq:    7,
		Options: ctp.CtpPull | ctp.CtpCongested,
		Parent:  42,
		ETX:     330,
	}

	buf := make([]byte, 64)
	n, err := ctp.MarshalBeaconFrame(&want, buf)
	if err != nil {
		t.Fatalf("MarshalBeaconFrame: %v", err)
	}

	var got ctp.BeaconFrame
	if err := ctp.UnmarshalBeaconFrame(buf[:n], &got); err != nil {
		t.Fatalf("UnmarshalBeaconFrame: %v", err)
	}

	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestMarshalBeaconFrameBufTooSmall(t *testing.T) {
	f := ctp.BeaconFrame{}
	_, err := ctp.MarshalBeaconFrame(&f, make([]byte, 1))
	if err == nil {
		t.Fatal("expected an error for an undersized buffer")
	}
}

func TestUnmarshalBeaconFrameTruncated(t *testing.T) {
	var f ctp.BeaconFrame
	err := ctp.UnmarshalBeaconFrame(make([]byte, 1), &f)
	if err == nil {
		t.Fatal("expected an error for a truncated buffer")
	}
}

func TestDataFrameRoundTrip(t *testing.T) {
	want := ctp.DataFrame{
		Header:  ctp.LinkHeader{Src: 3, Sink: 1, GainDBm10: -800, DurationMicros: 2048},
		Options: ctp.CtpCongested,
		THL:     2,
		ETX:     150,
		Origin:  3,
		SeqNo:   99,
		Payload: []byte("hello sensor network"),
	}

	buf := make([]byte, 128)
	n, err := ctp.MarshalDataFrame(&want, buf)
	if err != nil {
		t.Fatalf("MarshalDataFrame: %v", err)
	}

	var got ctp.DataFrame
	if err := ctp.UnmarshalDataFrame(buf[:n], &got); err != nil {
		t.Fatalf("UnmarshalDataFrame: %v", err)
	}

	if got.Header != want.Header || got.Options != want.Options || got.THL != want.THL ||
		got.ETX != want.ETX || got.Origin != want.Origin || got.SeqNo != want.SeqNo {
		t.Fatalf("round trip header mismatch: got %+v, want %+v", got, want)
	}
	if !bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("Payload = %q, want %q", got.Payload, want.Payload)
	}
}

func TestDataFrameRoundTripEmptyPayload(t *testing.T) {
	want := ctp.DataFrame{Header: ctp.LinkHeader{Src: 1, Sink: 2}, Origin: 1, SeqNo: 1}

	buf := make([]byte, 64)
	n, err := ctp.MarshalDataFrame(&want, buf)
	if err != nil {
		t.Fatalf("MarshalDataFrame: %v", err)
	}

	var got ctp.DataFrame
	if err := ctp.UnmarshalDataFrame(buf[:n], &got); err != nil {
		t.Fatalf("UnmarshalDataFrame: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Fatalf("Payload = %v, want empty", got.Payload)
	}
}

// TestDataFrameIdentity verifies the (Origin, SeqNo, THL) deduplication key
// : two frames differing only in payload share an identity, and
// a THL difference produces a distinct one.
func TestDataFrameIdentity(t *testing.T) {
	a := ctp.DataFrame{Origin: 5, SeqNo: 10, THL: 1, Payload: []byte("a")}
	b := ctp.DataFrame{Origin: 5, SeqNo: 10, THL: 1, Payload: []byte("different payload")}
	if a.Identity() != b.Identity() {
		t.Fatalf("expected identical identity for frames differing only in payload: %+v vs %+v", a.Identity(), b.Identity())
	}

	c := ctp.DataFrame{Origin: 5, SeqNo: 10, THL: 2}
	if a.Identity() == c.Identity() {
		t.Fatal("expected a THL difference to change the packet identity")
	}
}

func TestFrameBeaconRoundTrip(t *testing.T) {
	beacon := &ctp.BeaconFrame{Header: ctp.LinkHeader{Src: 1, Sink: ctp.BroadcastAddress}, Seq: 3, ETX: 40, Parent: 2}
	fr := ctp.NewBeaconFrameWrapper(beacon)

	buf := make([]byte, 64)
	n, err := fr.Marshal(buf)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := ctp.UnmarshalFrame(buf[:n])
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}
	if got.Kind != ctp.FrameKindBeacon {
		t.Fatalf("Kind = %v, want FrameKindBeacon", got.Kind)
	}
	if *got.Beacon != *beacon {
		t.Fatalf("round trip mismatch: got %+v, want %+v", *got.Beacon, *beacon)
	}
}

func TestFrameDataRoundTrip(t *testing.T) {
	data := &ctp.DataFrame{Header: ctp.LinkHeader{Src: 1, Sink: 2}, Origin: 1, SeqNo: 1, Payload: []byte("x")}
	fr := ctp.NewDataFrameWrapper(data)

	buf := make([]byte, 64)
	n, err := fr.Marshal(buf)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := ctp.UnmarshalFrame(buf[:n])
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}
	if got.Kind != ctp.FrameKindData {
		t.Fatalf("Kind = %v, want FrameKindData", got.Kind)
	}
	if got.Data.Origin != data.Origin || got.Data.SeqNo != data.SeqNo {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got.Data, data)
	}
}

func TestFrameSetHeader(t *testing.T) {
	data := &ctp.DataFrame{Origin: 1, SeqNo: 1}
	fr := ctp.NewDataFrameWrapper(data)

	fr.SetHeader(ctp.LinkHeader{Src: 9, Sink: 10})

	if fr.Header().Src != 9 || fr.Header().Sink != 10 {
		t.Fatalf("Header() = %+v, want Src 9 Sink 10", fr.Header())
	}
}

func TestUnmarshalFrameUnknownKind(t *testing.T) {
	_, err := ctp.UnmarshalFrame([]byte{0xEE})
	if err != ctp.ErrUnknownFrameKind {
		t.Fatalf("err = %v, want ErrUnknownFrameKind", err)
	}
}

func TestUnmarshalFrameEmptyBuf(t *testing.T) {
	_, err := ctp.UnmarshalFrame(nil)
	if err != ctp.ErrTruncated {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}
