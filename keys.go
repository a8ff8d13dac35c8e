package accounts

import (
	"github.com/lithammer/shortuuid"
)

// ShortUUIDKeys generates base57 keys and passwords
type ShortUUIDKeys struct{}

// ActivationKey implements KeyGenerator
func (ShortUUIDKeys) ActivationKey() string { return shortuuid.New() }

// ResetKey implements KeyGenerator
func (ShortUUIDKeys) ResetKey() string { return shortuuid.New() }

// Password implements KeyGenerator
func (ShortUUIDKeys) Password() string { return shortuuid.New() + shortuuid.New() }
