package report

import (
	"bufio"
	"io"

	"github.com/nao1215/odindexer/internal/tree"
)

// WriteURLList writes the URL of every file in t, one per line, in
// canonical order. The list is the input download managers expect
// (wget -i, aria2c -i).
func WriteURLList(output io.Writer, t *tree.Tree) (int, error) {
	bw := bufio.NewWriter(output)
	var total int
	err := t.Walk(func(n *tree.Node) error {
		for _, f := range n.Files() {
			written, err := bw.WriteString(f.URL + "\n")
			total += written
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	return total, bw.Flush()
}
