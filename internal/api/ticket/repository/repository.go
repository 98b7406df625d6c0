package ticketRepository

import (
	"audiogami/internal/api/ticket"
	"audiogami/internal/entity"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type SQLExecutor interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
	Rebind(query string) string
}

func New(db *sqlx.DB, log *logrus.Logger) Repository {
	return &repository{
		DB:  db,
		log: log,
	}
}

type repository struct {
	DB  *sqlx.DB
	log *logrus.Logger
}

type Repository interface {
	NewClient(tx bool) (Client, error)
}

func (r *repository) NewClient(tx bool) (Client, error) {
	var sqlExecutor SQLExecutor
	var commitFunc, rollbackFunc func() error

	sqlExecutor = r.DB

	if tx {
		txx, err := r.DB.Beginx()
		if err != nil {
			return Client{}, err
		}

		sqlExecutor = txx
		commitFunc = txx.Commit
		rollbackFunc = txx.Rollback
	} else {
		commitFunc = func() error { return nil }
		rollbackFunc = func() error { return nil }
	}

	return Client{
		Tickets:  &ticketsRepository{q: sqlExecutor, log: r.log},
		Commit:   commitFunc,
		Rollback: rollbackFunc,
	}, nil
}

type TicketStore interface {
	CreateTicket(ctx context.Context, t entity.Ticket) (entity.Ticket, error)
	GetTicketByID(ctx context.Context, id string) (entity.Ticket, error)
	// GetTicketByIDForUpdate locks the row until the surrounding transaction ends.
	GetTicketByIDForUpdate(ctx context.Context, id string) (entity.Ticket, error)
	ListTickets(ctx context.Context, filter ticket.TicketFilter) ([]entity.Ticket, int, error)
	UpdateTicket(ctx context.Context, id string, columns map[string]interface{}) (entity.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[entity.Status]int, error)
}

type Client struct {
	Tickets TicketStore

	Commit   func() error
	Rollback func() error
}

type ticketsRepository struct {
	q   SQLExecutor
	log *logrus.Logger
}
