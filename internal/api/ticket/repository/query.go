package ticketRepository

import (
	"audiogami/internal/api/ticket"
	"audiogami/internal/entity"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

var errNoColumns = errors.New("no columns to update")

// ticketColumns is the projection shared by every query returning tickets.
const ticketColumns = `
		id,
		created_at,
		updated_at,
		use_case,
		status,
		priority,
		category,
		tags,
		raw_transcript,
		email,
		language,
		device,
		symptoms,
		frequency,
		environment,
		actions_tried,
		impact,
		order_number,
		problem_type,
		product_description,
		delivery_status,
		desired_resolution,
		purchase_date,
		feature,
		steps_to_reproduce,
		request_type,
		description,
		urgency,
		context,
		expected_behavior,
		ideas_needs
`

const (
	queryCreateTicket = `
		INSERT INTO tickets (
			id,
			created_at,
			updated_at,
			use_case,
			status,
			priority,
			category,
			tags,
			raw_transcript,
			email,
			language,
			device,
			symptoms,
			frequency,
			environment,
			actions_tried,
			impact,
			order_number,
			problem_type,
			product_description,
			delivery_status,
			desired_resolution,
			purchase_date,
			feature,
			steps_to_reproduce,
			request_type,
			description,
			urgency,
			context,
			expected_behavior,
			ideas_needs
		) VALUES (
			:id,
			:created_at,
			:updated_at,
			:use_case,
			:status,
			:priority,
			:category,
			:tags,
			:raw_transcript,
			:email,
			:language,
			:device,
			:symptoms,
			:frequency,
			:environment,
			:actions_tried,
			:impact,
			:order_number,
			:problem_type,
			:product_description,
			:delivery_status,
			:desired_resolution,
			:purchase_date,
			:feature,
			:steps_to_reproduce,
			:request_type,
			:description,
			:urgency,
			:context,
			:expected_behavior,
			:ideas_needs
		)
		RETURNING` + ticketColumns

	queryGetTicketByID = `
		SELECT` + ticketColumns + `
		FROM tickets
		WHERE id = :id
	`

	queryGetTicketByIDForUpdate = queryGetTicketByID + `FOR UPDATE
	`

	queryDeleteTicket = `
		DELETE FROM tickets
		WHERE id = :id
	`

	queryCountByStatus = `
		SELECT
			status,
			COUNT(*) AS total
		FROM tickets
		GROUP BY status
	`
)

// updatableColumns lists what UpdateTicket may write. Identity, use case and
// language are fixed at creation.
var updatableColumns = func() map[string]struct{} {
	set := map[string]struct{}{
		"status":         {},
		"priority":       {},
		"category":       {},
		"tags":           {},
		"raw_transcript": {},
		"email":          {},
	}
	for _, name := range entity.ExtractedFieldNames {
		set[name] = struct{}{}
	}
	return set
}()

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func buildFilter(f ticket.TicketFilter) (string, map[string]interface{}) {
	var where []string
	argsKV := map[string]interface{}{}

	if f.Status != "" {
		where = append(where, "status = :status")
		argsKV["status"] = string(f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "(id ILIKE :search OR use_case ILIKE :search)")
		argsKV["search"] = "%" + escapeLike(s) + "%"
	}

	if len(where) == 0 {
		return "", argsKV
	}
	return "\n\t\tWHERE " + strings.Join(where, " AND "), argsKV
}

func buildListQuery(f ticket.TicketFilter) (string, map[string]interface{}) {
	where, argsKV := buildFilter(f)

	query := "\n\t\tSELECT" + ticketColumns + "\t\tFROM tickets" + where + "\n\t\tORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += "\n\t\tLIMIT :limit OFFSET :offset"
		argsKV["limit"] = f.Limit
		argsKV["offset"] = f.Offset
	}
	return query, argsKV
}

func buildCountQuery(f ticket.TicketFilter) (string, map[string]interface{}) {
	where, argsKV := buildFilter(f)
	return "\n\t\tSELECT COUNT(*)\n\t\tFROM tickets" + where, argsKV
}

// buildUpdateQuery writes the given columns in name order and bumps
// updated_at. A nil value sets the column to NULL.
func buildUpdateQuery(id string, columns map[string]interface{}, now time.Time) (string, map[string]interface{}, error) {
	if len(columns) == 0 {
		return "", nil, errNoColumns
	}

	names := make([]string, 0, len(columns))
	for name := range columns {
		if _, ok := updatableColumns[name]; !ok {
			return "", nil, fmt.Errorf("column %q is not updatable", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	argsKV := map[string]interface{}{
		"id":         id,
		"updated_at": now,
	}
	sets := make([]string, 0, len(names)+1)
	for _, name := range names {
		sets = append(sets, fmt.Sprintf("%s = :%s", name, name))
		value := columns[name]
		if name == "tags" {
			value = tagsArray(value)
		}
		argsKV[name] = value
	}
	sets = append(sets, "updated_at = :updated_at")

	query := "\n\t\tUPDATE tickets\n\t\tSET " + strings.Join(sets, ", ") + "\n\t\tWHERE id = :id\n\t\tRETURNING" + ticketColumns
	return query, argsKV, nil
}

func tagsArray(value interface{}) pq.StringArray {
	switch v := value.(type) {
	case []string:
		return pq.StringArray(v)
	case []entity.Tag:
		out := make(pq.StringArray, 0, len(v))
		for _, t := range v {
			out = append(out, string(t))
		}
		return out
	default:
		return pq.StringArray{}
	}
}
