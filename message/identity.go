// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// Identity layout sizes in bytes.
const (
	TagSize         = 8
	RoutingHashSize = 8
	ContentHashSize = 4
	IDSize          = TagSize + RoutingHashSize + ContentHashSize

	// IDLength is the length of the hex-encoded identity.
	IDLength = IDSize * 2
)

// ID is a composite message identity: delivery tag, routing hash and content hash,
// hex encoded. Broker delivery tags are channel-scoped, so the tag alone cannot
// identify a message across fetches; the hashes make the identity reproducible by
// any later process observing the same message.
type ID string

// NewID derives the identity of a message. The result depends only on its inputs.
func NewID(tag int64, queue, exchange, routingKey string, payload []byte) ID {
	routing := sha256.Sum256([]byte(routingInfo(queue, exchange, routingKey)))
	content := sha256.Sum256(payload)

	var buf [IDSize]byte
	binary.BigEndian.PutUint64(buf[:TagSize], uint64(tag))
	copy(buf[TagSize:TagSize+RoutingHashSize], routing[:RoutingHashSize])
	copy(buf[TagSize+RoutingHashSize:], content[:ContentHashSize])

	return ID(hex.EncodeToString(buf[:]))
}

// ParseID validates s as a hex-encoded identity.
func ParseID(s string) (ID, error) {
	id := ID(strings.TrimSpace(s))
	if _, err := id.decode(); err != nil {
		return "", err
	}
	return id, nil
}

// String returns the hex form of the identity.
func (id ID) String() string {
	return string(id)
}

// DeliveryTag extracts the tag segment.
func (id ID) DeliveryTag() (int64, error) {
	b, err := id.decode()
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:TagSize])), nil
}

// RoutingHash extracts the routing hash segment.
func (id ID) RoutingHash() ([]byte, error) {
	b, err := id.decode()
	if err != nil {
		return nil, err
	}
	return b[TagSize : TagSize+RoutingHashSize], nil
}

// ContentHash extracts the content hash segment.
func (id ID) ContentHash() ([]byte, error) {
	b, err := id.decode()
	if err != nil {
		return nil, err
	}
	return b[TagSize+RoutingHashSize:], nil
}

// Matches reports whether id refers to m. Identical strings always match. Otherwise
// both identities are decoded and compared by routing and content hash, so two fetches
// of the same message that only differ in their delivery tag are equivalent.
// Malformed identities never match.
func (id ID) Matches(m Message) bool {
	if id == m.ID {
		return true
	}

	a, err := id.decode()
	if err != nil {
		return false
	}
	b, err := m.ID.decode()
	if err != nil {
		return false
	}

	return bytes.Equal(a[TagSize:], b[TagSize:])
}

func (id ID) decode() ([]byte, error) {
	if len(id) != IDLength {
		return nil, ErrInvalidID
	}
	b, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, ErrInvalidID
	}
	return b, nil
}

func routingInfo(queue, exchange, routingKey string) string {
	var sb strings.Builder
	sb.WriteString("q:")
	sb.WriteString(orDash(queue))
	sb.WriteString(":e:")
	sb.WriteString(orDash(exchange))
	sb.WriteString(":rk:")
	sb.WriteString(orDash(routingKey))
	return sb.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
