package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainLMP        = "provenant/lmp/v1"
	DomainStateCache = "provenant/state/v1"
	DomainBlob       = "provenant/blob/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// orEmpty keeps nil snapshots and empty snapshots hashing identically.
func orEmpty(obj IRObject) IRObject {
	if obj == nil {
		return IRObject{}
	}
	return obj
}

// VersionID computes the lmp_id for a closured source and its captured state.
//
// The name is part of the hashed object so that two names sharing identical
// closure text never collide on the lmps primary key. Everything else is the
// closure content: the lexically closured source, the initial free and global
// variable snapshots, and the model kwargs that shape the prompt.
func VersionID(name, source string, freeVars, globalVars, apiParams IRObject) (string, error) {
	obj := IRObject{
		"name":        IRString(name),
		"source":      IRString(source),
		"free_vars":   orEmpty(freeVars),
		"global_vars": orEmpty(globalVars),
		"api_params":  orEmpty(apiParams),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("VersionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainLMP, canonical), nil
}

// StateCacheKey identifies one exact call configuration: the version, the
// canonical inputs and the captured state at call time. Two calls with the same
// key are interchangeable for caching layers, across process restarts.
func StateCacheKey(lmpID string, args IRArray, kwargs, freeVars, globalVars IRObject) (string, error) {
	if args == nil {
		args = IRArray{}
	}
	obj := IRObject{
		"lmp_id":      IRString(lmpID),
		"args":        args,
		"kwargs":      orEmpty(kwargs),
		"free_vars":   orEmpty(freeVars),
		"global_vars": orEmpty(globalVars),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("StateCacheKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainStateCache, canonical), nil
}

// BlobID computes the content address of a binary payload.
func BlobID(data []byte) string {
	return "sha256:" + hashWithDomain(DomainBlob, data)
}

// MustVersionID is like VersionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustVersionID(name, source string, freeVars, globalVars, apiParams IRObject) string {
	id, err := VersionID(name, source, freeVars, globalVars, apiParams)
	if err != nil {
		panic(err)
	}
	return id
}

// MustStateCacheKey is like StateCacheKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStateCacheKey(lmpID string, args IRArray, kwargs, freeVars, globalVars IRObject) string {
	key, err := StateCacheKey(lmpID, args, kwargs, freeVars, globalVars)
	if err != nil {
		panic(err)
	}
	return key
}
