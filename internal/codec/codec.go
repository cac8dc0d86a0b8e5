package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gridbase/gridbase/internal"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/vmihailenco/msgpack/v5"
)

// envelopePrefix versions the ciphertext envelope so a future key or cipher
// rotation can coexist with stored values.
const envelopePrefix = "gb1:"

// FieldCodec encrypts and decrypts individual field values. The key is
// derived from the configured secret with a one way hash and every call uses
// a fresh nonce, so identical plaintexts never produce identical ciphertext.
type FieldCodec struct {
	logger logger.Logger
	aead   cipher.AEAD
}

// New creates a codec from the configured secret.
func New(logger logger.Logger, secret string) (*FieldCodec, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is required")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "creating cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "creating gcm")
	}
	return &FieldCodec{
		logger: logger.WithPrefix("[codec]"),
		aead:   aead,
	}, nil
}

// Encrypt serializes the value and seals it into an opaque string envelope.
func (c *FieldCodec) Encrypt(value any) (string, error) {
	plaintext, err := msgpack.Marshal(value)
	if err != nil {
		return "", errors.Wrap(err, "serializing field value")
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "generating nonce")
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return envelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt. It never returns an error:
// a malformed envelope, a wrong key or a tampered ciphertext all log a
// diagnostic and report the value as unavailable, since one bad value must
// not abort a batch read.
func (c *FieldCodec) Decrypt(opaque string) (any, bool) {
	if !strings.HasPrefix(opaque, envelopePrefix) {
		c.logger.Debug("ciphertext missing envelope prefix, treating value as unavailable")
		internal.DecryptFailures.Inc()
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(opaque, envelopePrefix))
	if err != nil {
		c.logger.Debug("ciphertext is not valid base64: %s", err)
		internal.DecryptFailures.Inc()
		return nil, false
	}
	if len(data) < c.aead.NonceSize() {
		c.logger.Debug("ciphertext shorter than nonce, treating value as unavailable")
		internal.DecryptFailures.Inc()
		return nil, false
	}
	nonce, sealed := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		c.logger.Debug("failed to open ciphertext (wrong key or tampered): %s", err)
		internal.DecryptFailures.Inc()
		return nil, false
	}
	dec := msgpack.NewDecoder(bytes.NewReader(plaintext))
	dec.UseLooseInterfaceDecoding(true) // integers come back as int64, not the narrowest fit
	var value any
	if err := dec.Decode(&value); err != nil {
		c.logger.Debug("failed to deserialize decrypted value: %s", err)
		internal.DecryptFailures.Inc()
		return nil, false
	}
	return value, true
}

// EncodeRow returns a copy of the row with every field marked encrypted in
// the table definition sealed through the codec. Applied at the row encode
// boundary before handing rows to a source adapter.
func (c *FieldCodec) EncodeRow(table *internal.Table, row internal.Row) (internal.Row, error) {
	out := make(internal.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	for _, f := range table.Fields {
		if !f.Encrypted {
			continue
		}
		if v, ok := out[f.ID]; ok && v != nil {
			sealed, err := c.Encrypt(v)
			if err != nil {
				return nil, errors.Wrapf(err, "encrypting field %s", f.ID)
			}
			out[f.ID] = sealed
		}
	}
	return out, nil
}

// DecodeRow returns a copy of the row with every encrypted field opened. A
// value that cannot be opened is omitted from the row rather than failing
// the read.
func (c *FieldCodec) DecodeRow(table *internal.Table, row internal.Row) internal.Row {
	out := make(internal.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	for _, f := range table.Fields {
		if !f.Encrypted {
			continue
		}
		v, ok := out[f.ID]
		if !ok || v == nil {
			continue
		}
		opaque, ok := v.(string)
		if !ok {
			continue // never encrypted, leave as is
		}
		value, ok := c.Decrypt(opaque)
		if !ok {
			c.logger.Warn("field %s on table %s could not be decrypted, omitting", f.ID, table.ID)
			delete(out, f.ID)
			continue
		}
		out[f.ID] = value
	}
	return out
}
