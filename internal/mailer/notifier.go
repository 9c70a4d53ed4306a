package mailer

import (
	"log"
	"sync"

	"github.com/harlequingg/taskd/internal/storage"
)

const welcomeTemplate = "account_welcome.tmpl"

type sender interface {
	Send(recipient, templateFile string, data any) error
}

type Notifier struct {
	mailer sender
	logger *log.Logger
	wg     sync.WaitGroup
}

func NewNotifier(m sender, logger *log.Logger) *Notifier {
	return &Notifier{mailer: m, logger: logger}
}

func (n *Notifier) AccountProvisioned(a storage.Account) {
	n.background(func() {
		err := n.mailer.Send(a.Email, welcomeTemplate, a)
		if err != nil {
			n.logger.Printf("welcome mail for account %s: %v", a.ID, err)
		}
	})
}

func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) background(fn func()) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if err := recover(); err != nil {
				n.logger.Printf("notifier panic: %v", err)
			}
		}()
		fn()
	}()
}
