package rpc

import (
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simonexmachina/the-work/internal/models"
)

var ErrMalformedMessage = errors.New("malformed message")

const (
	keyUsername     = "username"
	keySalt         = "salt"
	keyVerifier     = "verifier"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUserID       = "user_id"
)

// WorksheetToStruct encodes w as a flat document (see models.Worksheet.ToMap).
func WorksheetToStruct(w *models.Worksheet) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(w.ToMap())
	if err != nil {
		return nil, fmt.Errorf("encode worksheet %s: %w", w.ID, err)
	}
	return s, nil
}

func WorksheetFromStruct(s *structpb.Struct) (*models.Worksheet, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: empty worksheet", ErrMalformedMessage)
	}
	w, err := models.FromMap(s.AsMap())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return w, nil
}

func WorksheetsToList(ws []models.Worksheet) (*structpb.ListValue, error) {
	l := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(ws))}
	for i := range ws {
		s, err := WorksheetToStruct(&ws[i])
		if err != nil {
			return nil, err
		}
		l.Values = append(l.Values, structpb.NewStructValue(s))
	}
	return l, nil
}

func WorksheetsFromList(l *structpb.ListValue) ([]models.Worksheet, error) {
	out := make([]models.Worksheet, 0, len(l.GetValues()))
	for i, v := range l.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("%w: item %d is not a document", ErrMalformedMessage, i)
		}
		w, err := WorksheetFromStruct(s)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, *w)
	}
	return out, nil
}

// Credentials carries a username with its key-derivation salt and verifier.
// Salt is empty on login.
type Credentials struct {
	Username string
	Salt     []byte
	Verifier []byte
}

func (c Credentials) ToStruct() (*structpb.Struct, error) {
	m := map[string]any{
		keyUsername: c.Username,
		keyVerifier: base64.StdEncoding.EncodeToString(c.Verifier),
	}
	if len(c.Salt) > 0 {
		m[keySalt] = base64.StdEncoding.EncodeToString(c.Salt)
	}
	return structpb.NewStruct(m)
}

func CredentialsFromStruct(s *structpb.Struct) (Credentials, error) {
	var c Credentials
	var err error

	if c.Username, err = stringField(s, keyUsername, true); err != nil {
		return c, err
	}
	if c.Salt, err = bytesField(s, keySalt); err != nil {
		return c, err
	}
	if c.Verifier, err = bytesField(s, keyVerifier); err != nil {
		return c, err
	}
	if len(c.Verifier) == 0 {
		return c, fmt.Errorf("%w: %s is required", ErrMalformedMessage, keyVerifier)
	}
	return c, nil
}

// TokenPair bundles a short-lived access token and a long-lived refresh
// token, together with the id of the user they were issued to.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	UserID       string
}

func (t TokenPair) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		keyAccessToken:  t.AccessToken,
		keyRefreshToken: t.RefreshToken,
		keyUserID:       t.UserID,
	})
}

func TokenPairFromStruct(s *structpb.Struct) (TokenPair, error) {
	var t TokenPair
	var err error

	if t.AccessToken, err = stringField(s, keyAccessToken, true); err != nil {
		return t, err
	}
	if t.RefreshToken, err = stringField(s, keyRefreshToken, true); err != nil {
		return t, err
	}
	if t.UserID, err = stringField(s, keyUserID, false); err != nil {
		return t, err
	}
	return t, nil
}

func stringField(s *structpb.Struct, key string, required bool) (string, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		if required {
			return "", fmt.Errorf("%w: %s is required", ErrMalformedMessage, key)
		}
		return "", nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrMalformedMessage, key)
	}
	if required && sv.StringValue == "" {
		return "", fmt.Errorf("%w: %s is required", ErrMalformedMessage, key)
	}
	return sv.StringValue, nil
}

func bytesField(s *structpb.Struct, key string) ([]byte, error) {
	str, err := stringField(s, key, false)
	if err != nil || str == "" {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not base64", ErrMalformedMessage, key)
	}
	return b, nil
}
