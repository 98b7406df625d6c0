package ticketRepository

import (
	"audiogami/internal/api/ticket"
	"audiogami/internal/entity"
	contextPkg "audiogami/pkg/context"
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

type TicketDB struct {
	ID                 sql.NullString `db:"id"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
	UseCase            sql.NullString `db:"use_case"`
	Status             sql.NullString `db:"status"`
	Priority           sql.NullString `db:"priority"`
	Category           sql.NullString `db:"category"`
	Tags               pq.StringArray `db:"tags"`
	RawTranscript      sql.NullString `db:"raw_transcript"`
	Email              sql.NullString `db:"email"`
	Language           sql.NullString `db:"language"`
	Device             sql.NullString `db:"device"`
	Symptoms           sql.NullString `db:"symptoms"`
	Frequency          sql.NullString `db:"frequency"`
	Environment        sql.NullString `db:"environment"`
	ActionsTried       sql.NullString `db:"actions_tried"`
	Impact             sql.NullString `db:"impact"`
	OrderNumber        sql.NullString `db:"order_number"`
	ProblemType        sql.NullString `db:"problem_type"`
	ProductDescription sql.NullString `db:"product_description"`
	DeliveryStatus     sql.NullString `db:"delivery_status"`
	DesiredResolution  sql.NullString `db:"desired_resolution"`
	PurchaseDate       sql.NullString `db:"purchase_date"`
	Feature            sql.NullString `db:"feature"`
	StepsToReproduce   sql.NullString `db:"steps_to_reproduce"`
	RequestType        sql.NullString `db:"request_type"`
	Description        sql.NullString `db:"description"`
	Urgency            sql.NullString `db:"urgency"`
	Context            sql.NullString `db:"context"`
	ExpectedBehavior   sql.NullString `db:"expected_behavior"`
	IdeasNeeds         sql.NullString `db:"ideas_needs"`
}

func (db TicketDB) fieldValues() map[string]sql.NullString {
	return map[string]sql.NullString{
		"device":              db.Device,
		"symptoms":            db.Symptoms,
		"frequency":           db.Frequency,
		"environment":         db.Environment,
		"actions_tried":       db.ActionsTried,
		"impact":              db.Impact,
		"order_number":        db.OrderNumber,
		"problem_type":        db.ProblemType,
		"product_description": db.ProductDescription,
		"delivery_status":     db.DeliveryStatus,
		"desired_resolution":  db.DesiredResolution,
		"purchase_date":       db.PurchaseDate,
		"feature":             db.Feature,
		"steps_to_reproduce":  db.StepsToReproduce,
		"request_type":        db.RequestType,
		"description":         db.Description,
		"urgency":             db.Urgency,
		"context":             db.Context,
		"expected_behavior":   db.ExpectedBehavior,
		"ideas_needs":         db.IdeasNeeds,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *ticketsRepository) makeTicket(db TicketDB) entity.Ticket {
	t := entity.Ticket{
		ID:            db.ID.String,
		CreatedAt:     db.CreatedAt,
		UpdatedAt:     db.UpdatedAt,
		UseCase:       entity.UseCaseID(db.UseCase.String),
		Status:        entity.Status(db.Status.String),
		Priority:      entity.Priority(db.Priority.String),
		Category:      db.Category.String,
		Tags:          make([]entity.Tag, 0, len(db.Tags)),
		RawTranscript: db.RawTranscript.String,
		Email:         db.Email.String,
		Language:      entity.Language(db.Language.String),
		Fields:        entity.Fields{},
	}

	for _, tag := range db.Tags {
		t.Tags = append(t.Tags, entity.Tag(tag))
	}
	for name, v := range db.fieldValues() {
		if v.Valid && v.String != "" {
			t.Fields[name] = v.String
		}
	}
	return t
}

func ticketArgs(t entity.Ticket) map[string]interface{} {
	tags := make(pq.StringArray, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tags = append(tags, string(tag))
	}

	argsKV := map[string]interface{}{
		"id":             t.ID,
		"created_at":     t.CreatedAt,
		"updated_at":     t.UpdatedAt,
		"use_case":       string(t.UseCase),
		"status":         string(t.Status),
		"priority":       string(t.Priority),
		"category":       nullString(t.Category),
		"tags":           tags,
		"raw_transcript": nullString(t.RawTranscript),
		"email":          nullString(t.Email),
		"language":       string(t.Language),
	}
	for _, name := range entity.ExtractedFieldNames {
		argsKV[name] = nullString(t.Fields[name])
	}
	return argsKV
}

func (r *ticketsRepository) CreateTicket(ctx context.Context, t entity.Ticket) (entity.Ticket, error) {
	requestID := contextPkg.GetRequestID(ctx)

	query, args, err := sqlx.Named(queryCreateTicket, ticketArgs(t))
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CreateTicket named query preparation err")
		return entity.Ticket{}, err
	}
	query = r.q.Rebind(query)

	var row TicketDB
	if err := r.q.QueryRowxContext(ctx, query, args...).StructScan(&row); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CreateTicket execution err")
		return entity.Ticket{}, err
	}

	return r.makeTicket(row), nil
}

func (r *ticketsRepository) GetTicketByID(ctx context.Context, id string) (entity.Ticket, error) {
	return r.getTicket(ctx, "GetTicketByID", queryGetTicketByID, id)
}

func (r *ticketsRepository) GetTicketByIDForUpdate(ctx context.Context, id string) (entity.Ticket, error) {
	return r.getTicket(ctx, "GetTicketByIDForUpdate", queryGetTicketByIDForUpdate, id)
}

func (r *ticketsRepository) getTicket(ctx context.Context, op, queryTemplate, id string) (entity.Ticket, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var row TicketDB

	query, args, err := sqlx.Named(queryTemplate, map[string]interface{}{"id": id})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error(op + " named query preparation err")
		return entity.Ticket{}, err
	}
	query = r.q.Rebind(query)

	if err := r.q.QueryRowxContext(ctx, query, args...).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"ticket_id":  id,
			}).Warn(op + " no rows found")
			return entity.Ticket{}, ticket.ErrTicketNotFound
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error(op + " execution err")
		return entity.Ticket{}, err
	}

	return r.makeTicket(row), nil
}

func (r *ticketsRepository) ListTickets(ctx context.Context, filter ticket.TicketFilter) ([]entity.Ticket, int, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var total int

	countSQL, countKV := buildCountQuery(filter)
	countQuery, countArgs, err := sqlx.Named(countSQL, countKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CountTickets named query preparation err")
		return nil, 0, err
	}
	countQuery = r.q.Rebind(countQuery)

	if err := r.q.QueryRowxContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CountTickets execution err")
		return nil, 0, err
	}

	listSQL, listKV := buildListQuery(filter)
	query, args, err := sqlx.Named(listSQL, listKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("ListTickets named query preparation err")
		return nil, 0, err
	}
	query = r.q.Rebind(query)

	var rows []TicketDB
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("ListTickets execution err")
		return nil, 0, err
	}

	tickets := make([]entity.Ticket, 0, len(rows))
	for _, row := range rows {
		tickets = append(tickets, r.makeTicket(row))
	}
	return tickets, total, nil
}

func (r *ticketsRepository) UpdateTicket(ctx context.Context, id string, columns map[string]interface{}) (entity.Ticket, error) {
	requestID := contextPkg.GetRequestID(ctx)

	updateSQL, argsKV, err := buildUpdateQuery(id, columns, time.Now())
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"ticket_id":  id,
			"error":      err.Error(),
		}).Error("UpdateTicket query build err")
		return entity.Ticket{}, err
	}

	query, args, err := sqlx.Named(updateSQL, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("UpdateTicket named query preparation err")
		return entity.Ticket{}, err
	}
	query = r.q.Rebind(query)

	var row TicketDB
	if err := r.q.QueryRowxContext(ctx, query, args...).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Ticket{}, ticket.ErrTicketNotFound
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"ticket_id":  id,
			"error":      err.Error(),
		}).Error("UpdateTicket execution err")
		return entity.Ticket{}, err
	}

	return r.makeTicket(row), nil
}

func (r *ticketsRepository) DeleteTicket(ctx context.Context, id string) error {
	requestID := contextPkg.GetRequestID(ctx)

	query, args, err := sqlx.Named(queryDeleteTicket, map[string]interface{}{"id": id})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("DeleteTicket named query preparation err")
		return err
	}
	query = r.q.Rebind(query)

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"ticket_id":  id,
			"error":      err.Error(),
		}).Error("DeleteTicket execution err")
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ticket.ErrTicketNotFound
	}
	return nil
}

type statusCount struct {
	Status string `db:"status"`
	Total  int    `db:"total"`
}

func (r *ticketsRepository) CountByStatus(ctx context.Context) (map[entity.Status]int, error) {
	requestID := contextPkg.GetRequestID(ctx)

	var rows []statusCount
	if err := r.q.SelectContext(ctx, &rows, r.q.Rebind(queryCountByStatus)); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CountByStatus execution err")
		return nil, err
	}

	counts := make(map[entity.Status]int, len(rows))
	for _, row := range rows {
		counts[entity.Status(row.Status)] = row.Total
	}
	return counts, nil
}
