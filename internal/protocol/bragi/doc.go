// Package bragi implements the report codec for current-generation
// Lumen devices and wireless dongles.
//
// Bragi frames are fixed 64-byte reports shaped around typed
// properties: the host sets or gets a property by number, and the
// device replies echoing the frame's sequence byte. The sequence
// echo is what makes the protocol safe under concurrency; a single
// reader can hand replies back to whichever caller issued the
// matching sequence. Sequence zero is reserved for unsolicited
// notifications.
//
// Bulk transfers (LED buffers, binding tables, firmware images) go
// through an endpoint handshake: OpOpenEndpoint, a run of OpWriteData
// frames, then OpCloseEndpoint.
//
// Wireless dongles relay frames for their paired children. Child
// traffic is wrapped in a routing envelope handled by WrapChild and
// UnwrapChild; inbound envelopes are detected with IsChildFrame and
// decoded with a second ParseReply pass on the inner frame.
package bragi
