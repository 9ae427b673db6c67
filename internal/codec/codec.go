// Package codec encodes and decodes the authentication protocol's ledger
// transaction payloads: a fixed magic prefix, an episode id, a command tag,
// and a length-prefixed UTF-8 encoding of the command body. The wire format
// is deliberately simple and versionless — every field width and order is
// part of the protocol's consensus surface, not an implementation detail.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Magic is the 4-byte prefix every authentication transaction payload
// begins with, used by the listener to cheaply recognize protocol traffic
// before attempting a full decode.
var Magic = [4]byte{0x41, 0x55, 0x54, 0x48} // "AUTH"

// Tag identifies the command carried by a payload.
type Tag byte

const (
	TagNewEpisode       Tag = 0x00
	TagRequestChallenge Tag = 0x01
	TagSubmitResponse   Tag = 0x02
	TagRevokeSession    Tag = 0x03
)

func (t Tag) String() string {
	switch t {
	case TagNewEpisode:
		return "NewEpisode"
	case TagRequestChallenge:
		return "RequestChallenge"
	case TagSubmitResponse:
		return "SubmitResponse"
	case TagRevokeSession:
		return "RevokeSession"
	default:
		return fmt.Sprintf("Tag(0x%02x)", byte(t))
	}
}

// Payload is the decoded form of a transaction's protocol payload.
type Payload struct {
	EpisodeID uint32
	Tag       Tag
	Body      Command
}

// Command is implemented by every command body this protocol can carry.
// Encode/Decode operate on the body only; the magic prefix, episode id,
// and tag are handled by Marshal/Unmarshal.
type Command interface {
	encodeBody(w *bytes.Buffer)
}

// NewEpisode carries the owner's compressed public key. The engine assigns
// the episode id on acceptance, so the wire EpisodeID field is always 0 for
// this command.
type NewEpisode struct {
	OwnerPublicKey []byte
}

func (c NewEpisode) encodeBody(w *bytes.Buffer) { writeBytes(w, c.OwnerPublicKey) }

// RequestChallenge carries no fields; the episode id and sender (recovered
// from the transaction's signature) are all it needs.
type RequestChallenge struct{}

func (c RequestChallenge) encodeBody(w *bytes.Buffer) {}

// SubmitResponse carries the participant's signature over the challenge
// and the nonce they observed (expected to equal the current challenge).
type SubmitResponse struct {
	SignatureHex string
	Nonce        string
}

func (c SubmitResponse) encodeBody(w *bytes.Buffer) {
	writeString(w, c.SignatureHex)
	writeString(w, c.Nonce)
}

// RevokeSession carries the session token being revoked and a signature
// over it.
type RevokeSession struct {
	SessionToken string
	SignatureHex string
}

func (c RevokeSession) encodeBody(w *bytes.Buffer) {
	writeString(w, c.SessionToken)
	writeString(w, c.SignatureHex)
}

// Marshal encodes a full payload: magic, episode id, tag, body.
func Marshal(episodeID uint32, tag Tag, body Command) []byte {
	var w bytes.Buffer
	w.Write(Magic[:])
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], episodeID)
	w.Write(idBuf[:])
	w.WriteByte(byte(tag))
	body.encodeBody(&w)
	return w.Bytes()
}

// writeString writes a 2-byte big-endian length prefix followed by the
// UTF-8 bytes of s. Field lengths in this protocol never approach 64KiB,
// so a 2-byte length is ample and keeps payloads compact.
func writeString(w *bytes.Buffer, s string) {
	writeBytes(w, []byte(s))
}

func writeBytes(w *bytes.Buffer, b []byte) {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
	w.Write(lenBuf[:])
	w.Write(b)
}

// Unmarshal decodes a full payload, validating the magic prefix and
// dispatching on the command tag. It returns a Decode-kind error (via the
// ErrDecode sentinel) on any malformed input rather than panicking: the
// listener feeds this function untrusted ledger data.
func Unmarshal(raw []byte) (Payload, error) {
	r := bytes.NewReader(raw)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != Magic {
		return Payload{}, fmt.Errorf("%w: bad magic prefix", ErrDecode)
	}

	var idBuf [4]byte
	if _, err := io.ReadFull(r, idBuf[:]); err != nil {
		return Payload{}, fmt.Errorf("%w: truncated episode id", ErrDecode)
	}
	episodeID := binary.BigEndian.Uint32(idBuf[:])

	tagByte, err := r.ReadByte()
	if err != nil {
		return Payload{}, fmt.Errorf("%w: truncated command tag", ErrDecode)
	}
	tag := Tag(tagByte)

	var body Command
	switch tag {
	case TagNewEpisode:
		pub, err := readBytes(r)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: NewEpisode: %v", ErrDecode, err)
		}
		body = NewEpisode{OwnerPublicKey: pub}
	case TagRequestChallenge:
		body = RequestChallenge{}
	case TagSubmitResponse:
		sigHex, err := readString(r)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: SubmitResponse.signature_hex: %v", ErrDecode, err)
		}
		nonce, err := readString(r)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: SubmitResponse.nonce: %v", ErrDecode, err)
		}
		body = SubmitResponse{SignatureHex: sigHex, Nonce: nonce}
	case TagRevokeSession:
		token, err := readString(r)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: RevokeSession.session_token: %v", ErrDecode, err)
		}
		sigHex, err := readString(r)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: RevokeSession.signature_hex: %v", ErrDecode, err)
		}
		body = RevokeSession{SessionToken: token, SignatureHex: sigHex}
	default:
		return Payload{}, fmt.Errorf("%w: unknown command tag 0x%02x", ErrDecode, tagByte)
	}

	return Payload{EpisodeID: episodeID, Tag: tag, Body: body}, nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("truncated length prefix: %w", err)
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("truncated field (want %d bytes): %w", n, err)
	}
	return buf, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
