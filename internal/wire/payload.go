package wire

import "fmt"

// UserStatus is the 1-bit "in a movie room" flag carried in a user-list record.
type UserStatus byte

const (
	StatusMainRoom  UserStatus = 0
	StatusMovieRoom UserStatus = 1
)

// MovieRecord is one entry of a movie-list payload (type 0b0101).
type MovieRecord struct {
	Title string
	IPv4  [4]byte
	Port  uint16
}

// UserRecord is one entry of a user-list payload (type 0b0110).
type UserRecord struct {
	Name   string
	Status UserStatus
}

// EncodeLoginRequest returns the raw UTF-8 payload for a login request.
func EncodeLoginRequest(username string) []byte { return []byte(username) }

// DecodeLoginRequest returns the username carried by a login-request payload.
func DecodeLoginRequest(payload []byte) string { return string(payload) }

// EncodeMovieSelection returns the raw UTF-8 payload for a movie-selection request.
func EncodeMovieSelection(title string) []byte { return []byte(title) }

// DecodeMovieSelection returns the movie title carried by a movie-selection payload.
func DecodeMovieSelection(payload []byte) string { return string(payload) }

// EncodeMovieList packs zero or more movie records: 1-byte title length, title
// bytes, 4-byte IPv4, 2-byte port, all big-endian.
func EncodeMovieList(records []MovieRecord) []byte {
	out := make([]byte, 0, len(records)*8)
	for _, rec := range records {
		title := []byte(rec.Title)
		out = append(out, byte(len(title)))
		out = append(out, title...)
		out = append(out, rec.IPv4[:]...)
		out = append(out, byte(rec.Port>>8), byte(rec.Port))
	}
	return out
}

// DecodeMovieList is the inverse of EncodeMovieList. It fails with
// ErrMalformedPayload if a declared title length would run past the payload.
func DecodeMovieList(payload []byte) ([]MovieRecord, error) {
	var out []MovieRecord
	offset := 0
	for offset < len(payload) {
		titleLen := int(payload[offset])
		offset++
		if offset+titleLen+4+2 > len(payload) {
			return nil, ErrMalformedPayload
		}
		title := string(payload[offset : offset+titleLen])
		offset += titleLen
		var ip [4]byte
		copy(ip[:], payload[offset:offset+4])
		offset += 4
		port := uint16(payload[offset])<<8 | uint16(payload[offset+1])
		offset += 2
		out = append(out, MovieRecord{Title: title, IPv4: ip, Port: port})
	}
	return out, nil
}

// EncodeUserList packs zero or more user records: 1-byte name length, name
// bytes, 1-byte status.
func EncodeUserList(records []UserRecord) []byte {
	out := make([]byte, 0, len(records)*4)
	for _, rec := range records {
		name := []byte(rec.Name)
		out = append(out, byte(len(name)))
		out = append(out, name...)
		out = append(out, byte(rec.Status))
	}
	return out
}

// DecodeUserList is the inverse of EncodeUserList.
func DecodeUserList(payload []byte) ([]UserRecord, error) {
	var out []UserRecord
	offset := 0
	for offset < len(payload) {
		nameLen := int(payload[offset])
		offset++
		if offset+nameLen+1 > len(payload) {
			return nil, ErrMalformedPayload
		}
		name := string(payload[offset : offset+nameLen])
		offset += nameLen
		status := UserStatus(payload[offset])
		offset++
		out = append(out, UserRecord{Name: name, Status: status})
	}
	return out, nil
}

// EncodeChat packs a chat payload: 1-byte sender-name length, sender-name
// bytes, remaining payload the raw UTF-8 chat text.
func EncodeChat(sender, text string) []byte {
	senderBytes := []byte(sender)
	out := make([]byte, 0, 1+len(senderBytes)+len(text))
	out = append(out, byte(len(senderBytes)))
	out = append(out, senderBytes...)
	out = append(out, []byte(text)...)
	return out
}

// DecodeChat is the inverse of EncodeChat.
func DecodeChat(payload []byte) (sender, text string, err error) {
	if len(payload) < 1 {
		return "", "", ErrMalformedPayload
	}
	senderLen := int(payload[0])
	if 1+senderLen > len(payload) {
		return "", "", fmt.Errorf("%w: sender length %d exceeds payload", ErrMalformedPayload, senderLen)
	}
	sender = string(payload[1 : 1+senderLen])
	text = string(payload[1+senderLen:])
	return sender, text, nil
}
