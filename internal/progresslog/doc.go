// Copyright (c) 2020 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package progresslog provides periodic logging for ledger block processing.

Tests are included to ensure proper functionality.

## Feature Overview

- Maintains cumulative totals about blocks between each logging interval
  - Total number of blocks
  - Total number of sidechain transactions
  - Total number of sidechains created
  - Total number of forward transfers
  - Total number of certificates
- Logs all cumulative data every 10 seconds
- Immediately logs any outstanding data when forced to do so
*/
package progresslog
