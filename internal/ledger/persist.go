package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/valpere/paperdigest/internal/errs"
)

// backupLayout is the timestamp embedded in backup names. Its fixed width
// makes name order equal to time order.
const backupLayout = "20060102150405"

var backupSuffixRe = regexp.MustCompile(`^\.\d{14}\.bak$`)

// Load replaces the in-memory state with the persisted ledger. A missing
// file yields an empty ledger. A corrupt file triggers recovery from the
// newest readable backup, and when none can be read the ledger starts empty.
// Load never fails.
func (l *Ledger) Load() {
	l.journals = make(map[string]*JournalProgress)

	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Debug("no progress file, starting empty", "path", l.path)
		return
	}
	if err == nil {
		var journals map[string]*JournalProgress
		if journals, err = decode(data); err == nil {
			l.journals = journals
			return
		}
	}

	l.logger.Error("failed to load progress file, attempting recovery", "path", l.path, "error", err)
	l.recoverFromBackup()
}

func (l *Ledger) recoverFromBackup() {
	backups, err := l.Backups()
	if err != nil {
		l.logger.Error("failed to list backups", "error", err)
	}
	for _, name := range backups {
		data, err := os.ReadFile(name)
		if err != nil {
			continue
		}
		journals, err := decode(data)
		if err != nil {
			l.logger.Warn("skipping unreadable backup", "backup", name, "error", err)
			continue
		}
		l.journals = journals
		l.logger.Info("recovered progress from backup", "backup", filepath.Base(name), "journals", len(journals))
		return
	}
	l.logger.Error("no usable backup found, progress history lost", "path", l.path)
}

func decode(data []byte) (map[string]*JournalProgress, error) {
	var journals map[string]*JournalProgress
	if err := json.Unmarshal(data, &journals); err != nil {
		return nil, err
	}
	out := make(map[string]*JournalProgress, len(journals))
	for name, p := range journals {
		if p == nil {
			continue
		}
		if p.ProcessedIDs == nil {
			p.ProcessedIDs = []string{}
		}
		out[name] = p
	}
	return out, nil
}

// Backups returns the backup files of the ledger, newest first.
func (l *Ledger) Backups() ([]string, error) {
	dir := filepath.Dir(l.path)
	base := filepath.Base(l.path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) <= len(base) || name[:len(base)] != base {
			continue
		}
		if backupSuffixRe.MatchString(name[len(base):]) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	slices.Reverse(names)

	out := make([]string, len(names))
	for i, name := range names {
		out[i] = filepath.Join(dir, name)
	}
	return out, nil
}

// Save writes the ledger atomically. If a live file exists it is first copied
// to a timestamped backup and old backups beyond the keep count are pruned.
// On failure the temporary file is removed, the error is logged and returned
// as a Persistent error; the in-memory state is left as it was.
func (l *Ledger) Save() error {
	if err := l.save(); err != nil {
		l.logger.Error("failed to save progress", "path", l.path, "error", err)
		return errs.Persistent("save progress", err)
	}
	l.logger.Debug("progress saved", "path", l.path, "journals", len(l.journals))
	return nil
}

func (l *Ledger) save() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l.journals); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	if _, err := os.Stat(l.path); err == nil {
		if err := l.rotateBackups(); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := l.writeAtomic(tmp, buf.Bytes()); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			l.logger.Warn("failed to remove temporary file", "path", tmp, "error", rmErr)
		}
		return err
	}
	return nil
}

func (l *Ledger) writeAtomic(tmp string, data []byte) error {
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if err := l.writeTemp(f, data); err != nil {
		f.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	syncDir(filepath.Dir(l.path))
	return nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// syncDir flushes the rename to disk where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

func (l *Ledger) rotateBackups() error {
	name := fmt.Sprintf("%s.%s.bak", l.path, l.now().Format(backupLayout))
	if err := copyFile(l.path, name); err != nil {
		return err
	}

	backups, err := l.Backups()
	if err != nil {
		return err
	}
	if len(backups) <= l.backupCount {
		return nil
	}
	for _, old := range backups[l.backupCount:] {
		if err := os.Remove(old); err != nil {
			l.logger.Warn("failed to prune backup", "backup", old, "error", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
