// Package opus handles encoding, decoding, and streaming of Opus audio frames
// for Discord voice playback of chimes.
//
// Audio is passed around in a minimal binary format: concatenated
// length-prefixed frames ([uint16 LE length][opus bytes]). No headers, no
// metadata.
//
// Encode transcodes any audio to Opus via FFmpeg, applying the chime volume,
// and produces length-prefixed frames. FrameReader reads them back.
// StreamToVoice sends decoded frames to a Discord voice connection.
package opus
