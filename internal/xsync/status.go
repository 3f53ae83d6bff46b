package xsync

import (
	"context"
	"fmt"
	"io"
)

// State compares a local file with its remote record.
type State string

const (
	StateSynced      State = "synced"
	StateLocalNewer  State = "local-newer"
	StateRemoteNewer State = "remote-newer"
	StateLocalOnly   State = "local-only"
	StateRemoteOnly  State = "remote-only"
	StateAbsent      State = "absent"
)

// FileStatus is the result of Status. Times are Unix milliseconds; hashes
// are empty for a side that does not exist.
type FileStatus struct {
	Path          string
	State         State
	LocalModTime  int64
	RemoteModTime int64
	LocalHash     string
	RemoteHash    string
	LocalSize     int64
	RemoteSize    int64
}

// Status reports how a file differs from its remote record without
// transferring any chunks.
func (s *SyncService) Status(ctx context.Context, rawPath string) (*FileStatus, error) {
	p, err := s.local.Resolve(rawPath)
	if err != nil {
		return nil, err
	}
	st := &FileStatus{Path: p.Rel}

	info, err := s.local.Stat(p)
	if err != nil {
		return nil, err
	}
	if info != nil {
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s is not a regular file", ErrValidation, p.Rel)
		}
		st.LocalModTime = info.ModTime().UnixMilli()
		st.LocalSize = info.Size()
		if st.LocalHash, err = s.hashFile(p); err != nil {
			return nil, err
		}
	}

	remote, err := s.remote.FetchMetadata(ctx, p.Rel)
	if err != nil {
		return nil, fmt.Errorf("fetching remote metadata for %s: %w", p.Rel, err)
	}
	if remote != nil {
		st.RemoteModTime = remote.LastModifiedTime
		st.RemoteHash = remote.FileHash
		st.RemoteSize = remote.FileSize
	}

	switch {
	case info == nil && remote == nil:
		st.State = StateAbsent
	case remote == nil:
		st.State = StateLocalOnly
	case info == nil:
		st.State = StateRemoteOnly
	case st.LocalModTime == st.RemoteModTime:
		st.State = StateSynced
	case st.LocalModTime > st.RemoteModTime:
		st.State = StateLocalNewer
	default:
		st.State = StateRemoteNewer
	}
	return st, nil
}

func (s *SyncService) hashFile(p *Path) (string, error) {
	f, err := s.local.Fs().Open(p.Abs)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", p.Rel, err)
	}
	defer f.Close()
	h := s.cfg.Algorithm.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", p.Rel, err)
	}
	return h.Sum(), nil
}
