//go:build !linux

package loose

func renameNoReplace(tmp, final string) error {
	return statRename(tmp, final)
}
