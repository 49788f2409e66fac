package ctp_test

import (
	"testing"

	"github.com/ctpnet/ctpsim/internal/ctp"
)

type fakeChannelSensor struct{ free bool }

func (s fakeChannelSensor) IsChannelFree(ctp.NodeID, ctp.Scheduler) bool { return s.free }

type fakeTransmitter struct {
	started []ctp.Frame
}

func (tx *fakeTransmitter) StartTransmission(_ ctp.NodeID, frame ctp.Frame, _ ctp.Scheduler) {
	tx.started = append(tx.started, frame)
}

type fakeNotifier struct {
	calls []bool
}

func (n *fakeNotifier) NotifyTransmitted(success bool) {
	n.calls = append(n.calls, success)
}

func TestLinkLayerSendRejectsWhileBusy(t *testing.T) {
	l := ctp.NewLinkLayer(1, ctp.DefaultCSMAConfig(), fakeChannelSensor{free: true}, &fakeTransmitter{}, &fakeNotifier{})
	sched := &fakeScheduler{}

	if !l.Send(ctp.Frame{}, 2, sched) {
		t.Fatal("first Send() = false, want true")
	}
	if l.Send(ctp.Frame{}, 3, sched) {
		t.Fatal("second concurrent Send() = true, want false while busy")
	}
}

func TestLinkLayerFullHandshakeNotifiesSuccess(t *testing.T) {
	xmit := &fakeTransmitter{}
	notify := &fakeNotifier{}
	l := ctp.NewLinkLayer(1, ctp.DefaultCSMAConfig(), fakeChannelSensor{free: true}, xmit, notify)
	sched := &fakeScheduler{}

	data := &ctp.DataFrame{Origin: 1, SeqNo: 1}
	if !l.Send(ctp.NewDataFrameWrapper(data), 2, sched) {
		t.Fatal("Send() = false, want true")
	}

	l.HandleCheckChannelFree(sched)
	l.HandleStartFrameTransmission(sched)

	if len(xmit.started) != 1 {
		t.Fatalf("StartTransmission called %d times, want 1", len(xmit.started))
	}

	l.HandleFrameTransmitted()

	if len(notify.calls) != 1 || !notify.calls[0] {
		t.Fatalf("notify calls = %v, want [true]", notify.calls)
	}

	// The link is idle again and can accept a new send.
	if !l.Send(ctp.Frame{}, 3, sched) {
		t.Fatal("Send() after completing a handshake = false, want true")
	}
}

func TestLinkLayerBackoffCapExceededDropsAndNotifiesFailure(t *testing.T) {
	csma := ctp.DefaultCSMAConfig()
	csma.MaxFreeSamples = 1
	notify := &fakeNotifier{}
	l := ctp.NewLinkLayer(1, csma, fakeChannelSensor{free: false}, &fakeTransmitter{}, notify)
	sched := &fakeScheduler{}

	l.Send(ctp.Frame{}, 2, sched)
	l.HandleCheckChannelFree(sched)
	l.HandleCheckChannelFree(sched)

	if len(notify.calls) != 1 || notify.calls[0] {
		t.Fatalf("notify calls = %v, want [false]", notify.calls)
	}

	// The link dropped back to idle and can accept a new send.
	if !l.Send(ctp.Frame{}, 2, sched) {
		t.Fatal("Send() after a backoff-cap drop = false, want true")
	}
}

func TestLinkLayerBeaconTransmissionDoesNotNotify(t *testing.T) {
	notify := &fakeNotifier{}
	l := ctp.NewLinkLayer(1, ctp.DefaultCSMAConfig(), fakeChannelSensor{free: true}, &fakeTransmitter{}, notify)
	sched := &fakeScheduler{}

	beacon := &ctp.BeaconFrame{}
	l.Send(ctp.NewBeaconFrameWrapper(beacon), ctp.BroadcastAddress, sched)
	l.HandleCheckChannelFree(sched)
	l.HandleStartFrameTransmission(sched)
	l.HandleFrameTransmitted()

	if len(notify.calls) != 0 {
		t.Fatalf("notify calls = %v, want none for a beacon transmission", notify.calls)
	}
}
