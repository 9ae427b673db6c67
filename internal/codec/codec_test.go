package codec_test

import (
	"testing"

	"github.com/kdapp-net/auth-episode/internal/codec"
)

func TestRoundTripSubmitResponse(t *testing.T) {
	want := codec.SubmitResponse{SignatureHex: "deadbeef", Nonce: "auth_1700000000_42"}
	raw := codec.Marshal(7, codec.TagSubmitResponse, want)

	payload, err := codec.Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if payload.EpisodeID != 7 {
		t.Fatalf("episode id = %d, want 7", payload.EpisodeID)
	}
	if payload.Tag != codec.TagSubmitResponse {
		t.Fatalf("tag = %s, want SubmitResponse", payload.Tag)
	}
	got, ok := payload.Body.(codec.SubmitResponse)
	if !ok {
		t.Fatalf("body type = %T, want SubmitResponse", payload.Body)
	}
	if got != want {
		t.Fatalf("body = %+v, want %+v", got, want)
	}
}

func TestRoundTripRevokeSession(t *testing.T) {
	want := codec.RevokeSession{SessionToken: "sess_12345", SignatureHex: "cafebabe"}
	raw := codec.Marshal(3, codec.TagRevokeSession, want)

	payload, err := codec.Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	got, ok := payload.Body.(codec.RevokeSession)
	if !ok {
		t.Fatalf("body type = %T, want RevokeSession", payload.Body)
	}
	if got != want {
		t.Fatalf("body = %+v, want %+v", got, want)
	}
}

func TestRoundTripNewEpisode(t *testing.T) {
	pub := []byte{0x02, 0x01, 0x02, 0x03}
	raw := codec.Marshal(0, codec.TagNewEpisode, codec.NewEpisode{OwnerPublicKey: pub})

	payload, err := codec.Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	got, ok := payload.Body.(codec.NewEpisode)
	if !ok {
		t.Fatalf("body type = %T, want NewEpisode", payload.Body)
	}
	if string(got.OwnerPublicKey) != string(pub) {
		t.Fatalf("owner public key = %x, want %x", got.OwnerPublicKey, pub)
	}
}

func TestUnmarshalRejectsBadMagic(t *testing.T) {
	raw := codec.Marshal(1, codec.TagRequestChallenge, codec.RequestChallenge{})
	raw[0] = 0x00

	if _, err := codec.Unmarshal(raw); err == nil {
		t.Fatal("expected error for corrupted magic prefix")
	}
}

func TestUnmarshalRejectsTruncatedPayload(t *testing.T) {
	raw := codec.Marshal(1, codec.TagSubmitResponse, codec.SubmitResponse{SignatureHex: "ab", Nonce: "cd"})
	truncated := raw[:len(raw)-1]

	if _, err := codec.Unmarshal(truncated); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestUnmarshalRejectsUnknownTag(t *testing.T) {
	raw := codec.Marshal(1, codec.TagRequestChallenge, codec.RequestChallenge{})
	raw[8] = 0xFF

	if _, err := codec.Unmarshal(raw); err == nil {
		t.Fatal("expected error for unknown command tag")
	}
}

func TestLeadingBitsMask(t *testing.T) {
	m := codec.LeadingBitsMask{Bits: 12, Pattern: []byte{0xAB, 0xC0}}

	if !m.Matches([]byte{0xAB, 0xCF, 0x00}) {
		t.Fatal("expected match on shared leading 12 bits")
	}
	if m.Matches([]byte{0xAB, 0x3F, 0x00}) {
		t.Fatal("expected mismatch: differing 12th bit")
	}
	if m.Matches([]byte{0xAB}) {
		t.Fatal("expected mismatch: txID too short for the mask")
	}
}

func TestAllowAllMatchesEverything(t *testing.T) {
	var m codec.AllowAll
	if !m.Matches(nil) || !m.Matches([]byte{0x00, 0xFF}) {
		t.Fatal("AllowAll must match any input")
	}
}
