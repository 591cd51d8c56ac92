package coverage

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Bitmap is a process-local, densely packed bit-set over edge indices.
// virgin-bits and crash-bits (spec.md §4.4) are Bitmaps; unlike the
// shared-memory Region, they are never written by the child process, so
// they need no cross-process mapping.
type Bitmap struct {
	bits []byte
	n    int
}

// NewBitmap returns a Bitmap of n bits, all set (spec.md: virgin-bits
// starts with every edge marked "never seen").
func NewBitmap(n int) Bitmap {
	b := Bitmap{bits: make([]byte, (n+7)/8), n: n}
	for i := range b.bits {
		b.bits[i] = 0xff
	}
	return b
}

// Len returns the number of bits the Bitmap covers.
func (b Bitmap) Len() int { return b.n }

// Test reports whether bit i is set.
func (b Bitmap) Test(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.bits[i/8]&(1<<uint(i%8)) != 0
}

// Clear unsets bit i.
func (b Bitmap) Clear(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.bits[i/8] &^= 1 << uint(i%8)
}

// PopCount returns the number of set bits.
func (b Bitmap) PopCount() int {
	count := 0
	for i := 0; i < b.n; i++ {
		if b.Test(i) {
			count++
		}
	}
	return count
}

// Bytes exposes the raw backing storage for (de)serialization.
func (b Bitmap) Bytes() []byte { return b.bits }

// BitmapFromBytes wraps raw bytes as a Bitmap of n bits. Returns false
// if the byte slice is the wrong length for n (spec.md's
// EvaluatorStateIncompatibility case).
func BitmapFromBytes(data []byte, n int) (Bitmap, bool) {
	want := (n + 7) / 8
	if len(data) != want {
		return Bitmap{}, false
	}
	cp := make([]byte, want)
	copy(cp, data)
	return Bitmap{bits: cp, n: n}, true
}

// Region is the shared-memory edge bitmap (spec.md §4.4, §6.7): a
// byte-per-edge counter array the instrumented child process writes
// into during execution, mapped MAP_SHARED so the parent observes the
// writes without any explicit synchronization — the REPRL wire
// protocol's synchronous request/response already serializes access
// (spec.md §5).
type Region struct {
	file *os.File
	data []byte
	id   string
}

// shmDir is where the region's backing file lives. /dev/shm is the
// conventional POSIX shared-memory tmpfs; fall back to the OS temp
// directory where it doesn't exist (e.g. non-Linux development hosts).
func shmDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// NewRegion creates (or truncates) a shared-memory region of numEdges
// bytes identified by id, and mmaps it MAP_SHARED so both this process
// and the child named by SHM_ID (spec.md §6.7) observe the same memory.
func NewRegion(id string, numEdges int) (*Region, error) {
	path := filepath.Join(shmDir(), "ilfuzz-shm-"+id)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("coverage: open shared region: %w", err)
	}
	if err := f.Truncate(int64(numEdges)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("coverage: size shared region: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, numEdges, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("coverage: mmap shared region: %w", err)
	}
	return &Region{file: f, data: data, id: id}, nil
}

// Path is the filesystem path backing the region. The child receives
// only the region's ID (via the SHM_ID environment variable); the
// backing file is named "ilfuzz-shm-" followed by that ID.
func (r *Region) Path() string { return r.file.Name() }

// ID is this region's instance identifier.
func (r *Region) ID() string { return r.id }

// Len returns the number of edge counters the region holds.
func (r *Region) Len() int { return len(r.data) }

// Clear zeroes every counter. Called from the PreExecute hook before
// every execution (spec.md §4.4).
func (r *Region) Clear() {
	for i := range r.data {
		r.data[i] = 0
	}
}

// Hit reports whether edge i was traversed at least once since the last
// Clear.
func (r *Region) Hit(i int) bool {
	if i < 0 || i >= len(r.data) {
		return false
	}
	return r.data[i] != 0
}

// Close unmaps and removes the backing file.
func (r *Region) Close() error {
	err := unix.Munmap(r.data)
	closeErr := r.file.Close()
	os.Remove(r.file.Name())
	if err != nil {
		return err
	}
	return closeErr
}
