// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package query

import (
	"github.com/decred/dcrd/chaincfg/chainhash"
)

// StatusKind identifies where a queried object currently lives.
type StatusKind uint8

const (
	// StatusNotFound indicates the object is unknown to the node.
	StatusNotFound StatusKind = iota

	// StatusUnconfirmed indicates the object is in the pool.
	StatusUnconfirmed

	// StatusConfirmed indicates the object is part of a main chain block.
	StatusConfirmed
)

// statusKindStrings is a map of status kinds back to their names for pretty
// printing.
var statusKindStrings = map[StatusKind]string{
	StatusNotFound:    "notfound",
	StatusUnconfirmed: "unconfirmed",
	StatusConfirmed:   "confirmed",
}

// String returns the StatusKind in human-readable form.
func (k StatusKind) String() string {
	if s, ok := statusKindStrings[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText renders the kind by name.
func (k StatusKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Status is attached to every queried object.  Height, BlockHash and
// Confirmations are only set for confirmed objects.
type Status struct {
	Kind          StatusKind      `json:"status"`
	Height        int64           `json:"height,omitempty"`
	BlockHash     *chainhash.Hash `json:"blockhash,omitempty"`
	Confirmations int64           `json:"confirmations,omitempty"`
}

// ImmatureAmountResult is the value of a sidechain that matures at a height.
type ImmatureAmountResult struct {
	MaturityHeight int64   `json:"maturityHeight"`
	Amount         float64 `json:"amount"`
}

// CertificateResult describes a confirmed or pending certificate of a
// sidechain.
type CertificateResult struct {
	Hash    string  `json:"certificate"`
	Epoch   int32   `json:"epoch"`
	Quality int64   `json:"quality"`
	Amount  float64 `json:"amount"`
	Height  int64   `json:"height,omitempty"`
}

// ScInfoResult models the data returned by GetScInfo.  Confirmed sidechains
// report CreatingTxHash while sidechains only created by a pooled
// transaction report UnconfCreatingTxHash.
type ScInfoResult struct {
	ScID                  string                 `json:"scid"`
	CreatingTxHash        string                 `json:"creatingTxHash,omitempty"`
	UnconfCreatingTxHash  string                 `json:"unconfCreatingTxHash,omitempty"`
	CreatedAtBlockHeight  int64                  `json:"createdAtBlockHeight,omitempty"`
	WithdrawalEpochLength uint32                 `json:"withdrawalEpochLength"`
	Epoch                 int32                  `json:"epoch"`
	EndEpochHeight        int64                  `json:"endEpochHeight"`
	Balance               float64                `json:"balance"`
	CreationAmount        float64                `json:"creationAmount,omitempty"`
	UnconfAmount          float64                `json:"unconfAmount,omitempty"`
	TotalWithdrawn        float64                `json:"totalWithdrawn"`
	LastCertificate       *CertificateResult     `json:"lastCertificate,omitempty"`
	UnconfCertificate     *CertificateResult     `json:"unconfCertificate,omitempty"`
	ImmatureAmounts       []ImmatureAmountResult `json:"immature amounts"`
}

// VinResult is an input of the transparent part of an object.
type VinResult struct {
	Txid     string  `json:"txid"`
	Vout     uint32  `json:"vout"`
	Tree     int8    `json:"tree"`
	Sequence uint32  `json:"sequence"`
	AmountIn float64 `json:"amountin"`
}

// VoutResult is an output of the transparent part of an object.
type VoutResult struct {
	N       uint32  `json:"n"`
	Value   float64 `json:"value"`
	Version uint16  `json:"version"`
	Asm     string  `json:"asm"`
	Hex     string  `json:"hex"`
}

// ScCreationResult is a decoded sidechain creation output.
type ScCreationResult struct {
	N                     uint32  `json:"n"`
	ScID                  string  `json:"scid"`
	WithdrawalEpochLength uint32  `json:"withdrawalEpochLength"`
	Value                 float64 `json:"value"`
	Address               string  `json:"address"`
	WCertVk               string  `json:"wCertVk"`
	CustomData            string  `json:"customData"`
	Constant              string  `json:"constant"`
}

// FwdTransferResult is a decoded forward transfer output.
type FwdTransferResult struct {
	N       uint32  `json:"n"`
	ScID    string  `json:"scid"`
	Value   float64 `json:"value"`
	Address string  `json:"address"`
}

// BackwardTransferResult is a decoded backward transfer of a certificate.
type BackwardTransferResult struct {
	N          uint32  `json:"n"`
	PubKeyHash string  `json:"pubkeyhash"`
	Address    string  `json:"address"`
	Value      float64 `json:"value"`
}

// CertResult holds the certificate specific fields of a decoded certificate.
type CertResult struct {
	ScID                  string  `json:"scid"`
	EpochNumber           int32   `json:"epochNumber"`
	Quality               int64   `json:"quality"`
	EndEpochCumCommitment string  `json:"endEpochCumScTxCommTreeRoot"`
	Proof                 string  `json:"scProof"`
	FtScFee               float64 `json:"ftScFee"`
	MbtrScFee             float64 `json:"mbtrScFee"`
	TotalAmount           float64 `json:"totalAmount"`
}

// DecodedObject models a decoded sidechain transaction or certificate.
// Exactly one of Txid and CertID is set.
type DecodedObject struct {
	Txid              string                   `json:"txid,omitempty"`
	CertID            string                   `json:"certid,omitempty"`
	Version           int32                    `json:"version"`
	LockTime          uint32                   `json:"locktime"`
	Expiry            uint32                   `json:"expiry"`
	Vin               []VinResult              `json:"vin"`
	Vout              []VoutResult             `json:"vout"`
	Cert              *CertResult              `json:"cert,omitempty"`
	BackwardTransfers []BackwardTransferResult `json:"vbt_ccout,omitempty"`
	ScCreations       []ScCreationResult       `json:"vsc_ccout,omitempty"`
	FwdTransfers      []FwdTransferResult      `json:"vft_ccout,omitempty"`
}

// RawObjectResult models the data returned by GetRawTransaction and
// GetRawCertificate.  Decoded is only set for verbose requests.
type RawObjectResult struct {
	Hex     string         `json:"hex"`
	Decoded *DecodedObject `json:"decoded,omitempty"`
	Status  Status         `json:"status"`
}

// EpochDataResult describes the epoch a certificate included in the next
// block may target along with the commitment it must claim.
type EpochDataResult struct {
	ScID                  string `json:"scid"`
	Epoch                 int32  `json:"epoch"`
	EndEpochHeight        int64  `json:"endEpochHeight"`
	EndEpochCumCommitment string `json:"endEpochCumScTxCommTreeRoot"`
}
