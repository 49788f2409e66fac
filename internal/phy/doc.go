// Package phy implements the additive-interference physical/channel layer
// shared by every simulated node: per-pair signal gain, per-node ambient
// noise, and pending-transmission bookkeeping used to decide whether an
// arriving frame is received cleanly, lost to interference, or never heard
// at all.
package phy
