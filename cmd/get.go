// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/LeeDigitalWorks/icbucket/pkg/compression"
	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Download an asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the canister's status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(statusCmd)

	getCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
}

// assetURL is where key is fetched from. Local replicas are addressed with
// ?canisterId= since "<id>.localhost" may not resolve.
func assetURL(id types.CanisterID, key string) (*url.URL, error) {
	if cfg.Network == types.NetworkLocal {
		u, err := url.Parse(cfg.Endpoint())
		if err != nil {
			return nil, err
		}
		u = types.AssetURL(u, key)
		u.RawQuery = url.Values{"canisterId": {id.String()}}.Encode()
		return u, nil
	}
	base, err := url.Parse(cfg.CanisterURL(id))
	if err != nil {
		return nil, err
	}
	return types.AssetURL(base, key), nil
}

func runGet(cmd *cobra.Command, args []string) error {
	id, err := cfg.CanisterID()
	if err != nil {
		return err
	}
	u, err := assetURL(id, args[0])
	if err != nil {
		return err
	}
	encodings, err := cfg.Encodings()
	if err != nil {
		return err
	}
	accept := make([]string, 0, len(encodings)+1)
	for _, e := range encodings {
		accept = append(accept, e.String())
	}
	accept = append(accept, compression.Identity.String())

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept-Encoding", strings.Join(accept, ", "))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: %s", args[0], resp.Status)
	}

	algo := compression.Identity
	if ce := resp.Header.Get("Content-Encoding"); ce != "" {
		if algo, err = compression.ParseAlgorithm(ce); err != nil {
			return err
		}
	}
	body, err := compression.DecompressReader(algo, resp.Body)
	if err != nil {
		return err
	}
	defer body.Close()

	var out io.Writer = cmd.OutOrStdout()
	if name, _ := cmd.Flags().GetString("output"); name != "" {
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	n, err := io.Copy(out, body)
	if err != nil {
		return err
	}
	logger.Debug().
		Str("key", args[0]).
		Str("encoding", algo.String()).
		Str("size", humanize.IBytes(uint64(n))).
		Msg("get: downloaded")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, client, err := openBucket()
	if err != nil {
		return err
	}
	st, err := client.Status(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Canister:    %s\n", client.CanisterID())
	fmt.Fprintf(out, "Status:      %s\n", st.Status)
	fmt.Fprintf(out, "Assets:      %s\n", humanize.Comma(int64(st.AssetCount)))
	fmt.Fprintf(out, "Memory:      %s\n", humanize.IBytes(st.MemorySize))
	fmt.Fprintf(out, "Cycles:      %s\n", humanize.Comma(int64(st.Cycles)))
	fmt.Fprintf(out, "Module hash: %x\n", st.ModuleHash)
	return nil
}
