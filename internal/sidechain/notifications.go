// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"fmt"

	"github.com/decred/scledger/scwire"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various ledger events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTBlockConnected indicates the associated block was connected to the
	// ledger.
	NTBlockConnected NotificationType = iota

	// NTBlockDisconnected indicates the associated block was disconnected
	// from the ledger.
	NTBlockDisconnected
)

// notificationTypeStrings is a map of notification types back to their
// constant names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTBlockConnected:    "NTBlockConnected",
	NTBlockDisconnected: "NTBlockDisconnected",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// BlockConnectedNtfnsData is the structure for data indicating information
// about a connected block.
type BlockConnectedNtfnsData struct {
	Block  *scwire.MsgBlock
	Height int64
}

// BlockDisconnectedNtfnsData is the structure for data indicating information
// about a disconnected block.
type BlockDisconnectedNtfnsData struct {
	Block  *scwire.MsgBlock
	Height int64
}

// Notification defines notification that is sent to the caller via the
// callback function provided during the call to New and consists of a
// notification type as well as associated data that depends on the type as
// follows:
//   - NTBlockConnected:    *BlockConnectedNtfnsData
//   - NTBlockDisconnected: *BlockDisconnectedNtfnsData
type Notification struct {
	Type NotificationType
	Data interface{}
}

// sendNotification sends a notification with the passed type and data if the
// caller requested notifications by providing a callback function in the call
// to New.
func (l *Ledger) sendNotification(typ NotificationType, data interface{}) {
	if l.notifications == nil {
		return
	}
	l.notifications(&Notification{Type: typ, Data: data})
}
