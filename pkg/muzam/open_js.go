//go:build js || wasm

package muzam

import "errors"

func (r *Recognizer) openStore(string) error {
	return errors.New("database storage is not available in this build")
}
