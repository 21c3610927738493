package auth

import "github.com/ceyewan/dealflow/xerrors"

var (
	ErrMissingToken     = xerrors.New("auth: missing token")
	ErrInvalidToken     = xerrors.New("auth: invalid token")
	ErrExpiredToken     = xerrors.New("auth: token expired")
	ErrInvalidSignature = xerrors.New("auth: invalid signature")
)
