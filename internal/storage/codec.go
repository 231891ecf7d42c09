package storage

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yndnr/sessiond/internal/core/domain"
	"github.com/yndnr/sessiond/pkg/crypto/seal"
)

// Record format bytes.
const (
	formatPlain  byte = 1
	formatSealed byte = 2
)

// recordVersion is stored in every record as "v".
const recordVersion = 1

// ErrCorruptRecord is returned for records that cannot be decoded.
var ErrCorruptRecord = errors.New("storage: corrupt session record")

// Codec converts sessions to stored records and back.
type Codec struct {
	sealer *seal.Sealer
}

// NewCodec returns a codec. A nil sealer stores records in the clear.
func NewCodec(sealer *seal.Sealer) *Codec {
	return &Codec{sealer: sealer}
}

// Encode serializes s. Sealed records are bound to the session ID.
func (c *Codec) Encode(s *domain.Session) ([]byte, error) {
	params := make(map[string]*structpb.Value)
	for k, v := range s.Parameters() {
		params[k] = structpb.NewStringValue(v)
	}

	rec := &structpb.Struct{Fields: map[string]*structpb.Value{
		"v":          structpb.NewNumberValue(recordVersion),
		"id":         structpb.NewStringValue(s.ID),
		"user_id":    structpb.NewNumberValue(float64(s.UserID)),
		"context_id": structpb.NewNumberValue(float64(s.ContextID)),
		"login_name": structpb.NewStringValue(s.LoginName),
		"secret":     structpb.NewStringValue(s.Secret),
		"auth_id":    structpb.NewStringValue(s.AuthID),
		"created_at": structpb.NewNumberValue(float64(s.CreatedAt)),
		"local_ip":   structpb.NewStringValue(s.LocalIP()),
		"client":     structpb.NewStringValue(s.Client()),
		"hash":       structpb.NewStringValue(s.Hash()),
		"params":     structpb.NewStructValue(&structpb.Struct{Fields: params}),
	}}

	body, err := proto.MarshalOptions{Deterministic: true}.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal %s: %w", s.ID, err)
	}

	if c.sealer == nil {
		return append([]byte{formatPlain}, body...), nil
	}
	sealed, err := c.sealer.Seal(body, []byte(s.ID))
	if err != nil {
		return nil, fmt.Errorf("storage: seal %s: %w", s.ID, err)
	}
	return append([]byte{formatSealed}, sealed...), nil
}

// Decode parses a record stored under id.
func (c *Codec) Decode(id string, data []byte) (*domain.Session, error) {
	if len(data) < 1 {
		return nil, ErrCorruptRecord
	}

	body := data[1:]
	switch data[0] {
	case formatPlain:
	case formatSealed:
		if c.sealer == nil {
			return nil, fmt.Errorf("storage: record %s is sealed and no encryption key is configured", id)
		}
		opened, err := c.sealer.Open(body, []byte(id))
		if err != nil {
			return nil, fmt.Errorf("storage: open %s: %w", id, err)
		}
		body = opened
	default:
		return nil, fmt.Errorf("%w: format %d", ErrCorruptRecord, data[0])
	}

	var rec structpb.Struct
	if err := proto.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	f := rec.GetFields()
	if f["id"].GetStringValue() != id {
		return nil, fmt.Errorf("%w: id mismatch", ErrCorruptRecord)
	}

	s := &domain.Session{
		ID:        id,
		UserID:    int(f["user_id"].GetNumberValue()),
		ContextID: int(f["context_id"].GetNumberValue()),
		LoginName: f["login_name"].GetStringValue(),
		Secret:    f["secret"].GetStringValue(),
		AuthID:    f["auth_id"].GetStringValue(),
		CreatedAt: int64(f["created_at"].GetNumberValue()),
	}
	s.SetLocalIP(f["local_ip"].GetStringValue())
	s.SetClient(f["client"].GetStringValue())
	s.SetHash(f["hash"].GetStringValue())
	for k, v := range f["params"].GetStructValue().GetFields() {
		s.SetParameter(k, v.GetStringValue())
	}
	return s, nil
}

// storageErr wraps a backend failure as domain.ErrStorageError.
func storageErr(op string, err error) error {
	return domain.ErrStorageError.WithDetails(op).WithCause(err)
}
