// Package shared provides small random-value helpers.
package shared

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// MakeRandHexString generates a random hexadecimal string of the given size.
// The size parameter specifies the number of random bytes to generate before
// encoding them as a hexadecimal string, so the result is 2*size characters.
//
// It returns an error if the random number generator fails.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// UniqueToken returns a 13-character lowercase hex token made of the current
// time in microseconds followed by random bytes. It is unique enough to make
// storage keys collision-free without coordination.
func UniqueToken(now time.Time) (string, error) {
	ts := strconv.FormatInt(now.UnixMicro(), 16)
	if len(ts) > 5 {
		ts = ts[len(ts)-5:]
	}
	random, err := MakeRandHexString(4)
	if err != nil {
		return "", err
	}
	return (ts + random)[:13], nil
}
