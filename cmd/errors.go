// SPDX-License-Identifier: Apache-2.0

package cmd

import "errors"

var errCacheNotInitialized = errors.New("no catalog cache found in this directory; run a command that populates it, or pass --dir")
