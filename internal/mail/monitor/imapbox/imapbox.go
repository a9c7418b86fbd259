// Package imapbox connects the email monitor to a real IMAP mailbox over TLS.
package imapbox

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/pkg/errors"
)

const (
	DefaultPort   = 993
	DefaultFolder = "INBOX"
)

type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	Folder   string
}

type Box struct {
	cfg Config
	c   *client.Client
}

func New(cfg Config) *Box {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Folder == "" {
		cfg.Folder = DefaultFolder
	}
	return &Box{cfg: cfg}
}

func (b *Box) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", b.cfg.Server, b.cfg.Port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return errors.Wrap(err, "dial imap")
	}
	if err := c.Login(b.cfg.Username, b.cfg.Password); err != nil {
		_ = c.Logout()
		return errors.Wrap(err, "imap login")
	}
	if _, err := c.Select(b.cfg.Folder, false); err != nil {
		_ = c.Logout()
		return errors.Wrapf(err, "select folder %s", b.cfg.Folder)
	}
	b.c = c
	return nil
}

func (b *Box) SearchUnseen(ctx context.Context) ([]uint32, error) {
	if b.c == nil {
		return nil, errors.New("not connected")
	}
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := b.c.UidSearch(criteria)
	if err != nil {
		return nil, errors.Wrap(err, "uid search")
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (b *Box) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	if b.c == nil {
		return nil, errors.New("not connected")
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- b.c.UidFetch(seqset, items, ch)
	}()

	var raw []byte
	for msg := range ch {
		if r := msg.GetBody(section); r != nil {
			raw, _ = io.ReadAll(r)
		}
	}
	if err := <-done; err != nil {
		return nil, errors.Wrapf(err, "uid fetch %d", uid)
	}
	if raw == nil {
		return nil, errors.Errorf("message %d not returned", uid)
	}
	return raw, nil
}

func (b *Box) Close() error {
	if b.c == nil {
		return nil
	}
	err := b.c.Logout()
	b.c = nil
	return err
}
