package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/finadvisor/internal/statecodec"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "저장된 상태 디코딩",
	Long: `session_details.response 에 저장된 상태를 디코딩해서 출력합니다.
구조화 형식과 이전 repr 형식을 모두 읽습니다. "-" 는 stdin.

Example:
  go run ./cmd/advisor decode state.json
  go run ./cmd/advisor decode state.json --json`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

var decodeJSON bool

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeJSON, "json", false, "구조화 형식으로 다시 인코딩해서 출력")
}

func runDecode(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}

	st, err := statecodec.Decode(string(data))
	if err != nil {
		return err
	}

	if !decodeJSON {
		PrintState(st)
		return nil
	}

	encoded, err := statecodec.Encode(st)
	if err != nil {
		return err
	}
	var pretty json.RawMessage = []byte(encoded)
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
