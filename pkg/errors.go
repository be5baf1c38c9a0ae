// Package pkg, relay'in paylaşılan yardımcılarını barındırır.
// Bu dosya domain-level sentinel error'ları tanımlar.
//
// Service katmanı bu error'ları wrap ederek döner:
//
//	return fmt.Errorf("%w: calleeId is required", pkg.ErrBadRequest)
//
// Handler katmanı errors.Is ile yakalayıp HTTP status'a çevirir (bkz. response.go).
package pkg

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrAlreadyExists   = errors.New("already exists")
	ErrBadRequest      = errors.New("bad request")
	ErrTooManyRequests = errors.New("too many requests")
	ErrInternal        = errors.New("internal error")
)
