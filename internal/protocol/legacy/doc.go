// Package legacy implements the report codec for first-generation
// Lumen devices.
//
// Legacy devices exchange fixed 64-byte HID reports. Commands are
// single reports carrying an opcode and inline arguments; bulk
// payloads such as LED colour buffers are split into sequenced
// 60-byte stream chunks followed by a commit command. Input arrives
// on the interrupt endpoint as typed event reports.
//
// The codec is purely byte-level: it never touches the transport.
// Device operations compose EncodeCommand/EncodeStream with a
// transport write and feed replies back through ParseReply.
package legacy
