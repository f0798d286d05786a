package out

// BlobStorage is the opaque attachment byte store.
type BlobStorage interface {
	Save(path string, data []byte) error
	Open(path string) ([]byte, error)
}
