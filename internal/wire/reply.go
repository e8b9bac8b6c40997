package wire

// Reply encodes one of the three reply shapes the protocol defines. Every
// command yields exactly one reply.

// EncodeOK renders the no-value success reply.
func EncodeOK() []byte {
	return EncodeTokenString("OK")
}

// EncodeValue renders a successful reply carrying a payload.
func EncodeValue(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+16)
	out = append(out, EncodeTokenString("VALUE")...)
	out = append(out, EncodeToken(payload)...)
	return out
}

// EncodeError renders a failure reply. The connection stays open.
func EncodeError(msg string) []byte {
	out := make([]byte, 0, len(msg)+16)
	out = append(out, EncodeTokenString("ERROR")...)
	out = append(out, EncodeTokenString(msg)...)
	return out
}
