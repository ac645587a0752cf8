package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

const (
	HeaderPubkey    = "X-RaceVault-Pubkey"
	HeaderTimestamp = "X-RaceVault-Timestamp"
	HeaderSignature = "X-RaceVault-Signature"

	maxBodyBytes = 1 << 20
)

var (
	errMissingAuth      = errors.New("missing signature headers")
	errInvalidPubkey    = errors.New("invalid public key")
	errInvalidTimestamp = errors.New("invalid timestamp")
	errStaleRequest     = errors.New("request timestamp outside of the accepted window")
	errInvalidSignature = errors.New("invalid signature")
)

type callerKey struct{}

// Caller returns the authenticated signer of the request.
func Caller(ctx context.Context) (solana.PublicKey, bool) {
	pk, ok := ctx.Value(callerKey{}).(solana.PublicKey)
	return pk, ok
}

// SigningMessage is the payload a caller signs: method, path, unix timestamp
// and the hex sha256 of the body, newline separated.
func SigningMessage(method, path string, timestamp int64, body []byte) []byte {
	digest := sha256.Sum256(body)
	return fmt.Appendf(nil, "%s\n%s\n%d\n%s", method, path, timestamp, hex.EncodeToString(digest[:]))
}

// SignRequest sets the signature headers on req. The body, if any, is read and
// replaced so the request can still be sent.
func SignRequest(req *http.Request, key solana.PrivateKey, now time.Time) error {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("failed to read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	ts := now.Unix()
	sig, err := key.Sign(SigningMessage(req.Method, req.URL.Path, ts, body))
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	req.Header.Set(HeaderPubkey, key.PublicKey().String())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, sig.String())
	return nil
}

// authenticate verifies the signature headers and stores the signer as the
// request caller. The body is buffered and restored for the handler.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.verify(r)
		if err != nil {
			s.log.Debug("server: authentication failed", "path", r.URL.Path, "error", err)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Message: err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func (s *Server) verify(r *http.Request) (solana.PublicKey, error) {
	rawPubkey := r.Header.Get(HeaderPubkey)
	rawTimestamp := r.Header.Get(HeaderTimestamp)
	rawSignature := r.Header.Get(HeaderSignature)
	if rawPubkey == "" || rawTimestamp == "" || rawSignature == "" {
		return solana.PublicKey{}, errMissingAuth
	}

	pubkey, err := solana.PublicKeyFromBase58(rawPubkey)
	if err != nil {
		return solana.PublicKey{}, errInvalidPubkey
	}
	ts, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return solana.PublicKey{}, errInvalidTimestamp
	}
	age := s.cfg.Clock.Since(time.Unix(ts, 0))
	if age > s.cfg.ReplayWindow || age < -s.cfg.ReplayWindow {
		return solana.PublicKey{}, errStaleRequest
	}
	sig, err := solana.SignatureFromBase58(rawSignature)
	if err != nil {
		return solana.PublicKey{}, errInvalidSignature
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to read body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if !sig.Verify(pubkey, SigningMessage(r.Method, r.URL.Path, ts, body)) {
		return solana.PublicKey{}, errInvalidSignature
	}
	return pubkey, nil
}
