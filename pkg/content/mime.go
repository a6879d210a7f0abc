// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"bufio"
	"io"
	"mime"
	"path"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen matches the prefix mimetype inspects by default.
const sniffLen = 3072

// DetectContentType guesses the media type of a file from its name, falling
// back to sniffing its first bytes. The returned reader yields the complete
// content, including the sniffed prefix.
func DetectContentType(name string, r io.Reader) (string, io.Reader) {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct, r
	}

	br := bufio.NewReaderSize(r, sniffLen)
	head, _ := br.Peek(sniffLen)
	return mimetype.Detect(head).String(), br
}
