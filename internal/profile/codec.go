// Package profile converts between stored user records and decrypted profiles.
package profile

import (
	"encoding/json"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/cryptoutil"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

type Codec struct {
	cipher cryptoutil.FieldCipher
}

func NewCodec(c cryptoutil.FieldCipher) *Codec {
	return &Codec{cipher: c}
}

// Open returns the decrypted profile for rec.
func (c *Codec) Open(rec *entity.Record) (*entity.Profile, error) {
	p := &entity.Profile{
		ID:          rec.ID,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		Role:        rec.Role,
		CreatedAt:   rec.CreatedAt,
	}
	if rec.AttributesCipher == "" {
		return p, nil
	}
	raw, err := c.cipher.Open(rec.AttributesCipher, []byte(rec.ID))
	if err != nil {
		return nil, fmt.Errorf("decrypt attributes: %w", err)
	}
	if err := json.Unmarshal(raw, &p.Attributes); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return p, nil
}

// Seal encrypts attrs into rec.AttributesCipher; rec.ID must already be set.
func (c *Codec) Seal(rec *entity.Record, attrs entity.Attributes) error {
	if attrs == (entity.Attributes{}) {
		rec.AttributesCipher = ""
		return nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	ct, err := c.cipher.Seal(raw, []byte(rec.ID))
	if err != nil {
		return fmt.Errorf("encrypt attributes: %w", err)
	}
	rec.AttributesCipher = ct
	return nil
}
