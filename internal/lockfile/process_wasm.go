//go:build js && wasm

package lockfile

// isProcessRunning always reports false in WASM: there is no
// multi-process environment to check against (file locking is a
// no-op there too, see lock_wasm.go).
func isProcessRunning(pid int) bool {
	return false
}
