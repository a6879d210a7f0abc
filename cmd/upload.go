// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/LeeDigitalWorks/icbucket/pkg/bucket"
	"github.com/LeeDigitalWorks/icbucket/pkg/cache"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload files into a directory",
	Long: `Upload files into a directory of the canister. Every file is stored
uncompressed and in each configured encoding. Files uploaded together are
committed in one batch.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	f := uploadCmd.Flags()
	f.StringP("dir", "d", "/", "Destination directory")
	f.Int("concurrency", 0, "Files encoded and uploaded at once")
	f.StringSlice("encodings", nil, "Compressed encodings to store next to identity")
	f.String("content_type", "", "Content type for every file (detected when empty)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	fl := NewFlagLoader(cmd)
	cfg.Upload.Concurrency = fl.Int("concurrency", cfg.Upload.Concurrency)
	cfg.Upload.Encodings = fl.StringSlice("encodings", cfg.Upload.Encodings)

	b, _, err := openBucket()
	if err != nil {
		return err
	}
	defer b.Close()

	dir, _ := cmd.Flags().GetString("dir")
	contentType, _ := cmd.Flags().GetString("content_type")

	files := make([]bucket.File, 0, len(args))
	for _, name := range args {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		files = append(files, bucket.File{
			Name:        filepath.Base(name),
			Body:        f,
			ContentType: contentType,
		})
	}

	ctx := cmd.Context()
	stop := watchProgress(ctx, b, cmd.ErrOrStderr())
	err = b.UploadFiles(ctx, dir, files)
	stop()
	if err != nil {
		return err
	}

	for _, f := range files {
		fmt.Fprintln(cmd.OutOrStdout(), b.URL(path.Join("/", dir, f.Name)))
	}
	return nil
}

// watchProgress renders upload progress from cache events on a terminal.
// It returns a func that stops rendering and clears the line.
func watchProgress(ctx context.Context, b *bucket.Bucket, out io.Writer) func() {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}

	events, unsubscribe := b.Cache().Subscribe()
	r := &progressRenderer{out: f, states: make(map[string]types.UploadingState)}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			if ev.Kind != cache.EventUploading {
				continue
			}
			a, err := b.Cache().Asset(ctx, b.URL(ev.Key))
			if err != nil || a.Uploading == nil || a.Uploading.IsIndeterminate() {
				r.done(ev.Key)
				continue
			}
			r.update(ev.Key, *a.Uploading)
		}
	}()

	return func() {
		unsubscribe()
		wg.Wait()
		r.clear()
	}
}

type progressRenderer struct {
	out *os.File

	mu     sync.Mutex
	states map[string]types.UploadingState
}

func (r *progressRenderer) update(key string, st types.UploadingState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[key] = st
	r.render()
}

func (r *progressRenderer) done(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, key)
	r.render()
}

func (r *progressRenderer) render() {
	var uploaded, total int64
	for _, st := range r.states {
		uploaded += st.UploadedBytes
		total += st.TotalBytesToBeUploaded
	}
	line := fmt.Sprintf("uploading %d file(s): %s / %s",
		len(r.states), humanize.IBytes(uint64(uploaded)), humanize.IBytes(uint64(total)))

	if width, _, err := term.GetSize(int(r.out.Fd())); err == nil && width > 0 && len(line) >= width {
		line = line[:width-1]
	}
	fmt.Fprintf(r.out, "\r\033[K%s", line)
}

func (r *progressRenderer) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, "\r\033[K")
}
