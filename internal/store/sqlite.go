package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	url            TEXT NOT NULL UNIQUE,
	title          TEXT NOT NULL DEFAULT '',
	phone_searched INTEGER NOT NULL DEFAULT 0,
	expired        INTEGER NOT NULL DEFAULT 0,
	has_phone_hint INTEGER NOT NULL DEFAULT 0,
	contacts       TEXT NOT NULL DEFAULT '[]',
	primary_phone  TEXT NOT NULL DEFAULT '',
	pipeline_stage TEXT NOT NULL DEFAULT 'inbox',
	listing_status TEXT NOT NULL DEFAULT 'active',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	lead_id            INTEGER NOT NULL UNIQUE REFERENCES leads(id),
	status             TEXT NOT NULL,
	stage              INTEGER NOT NULL CHECK (stage > 0),
	last_sent_message  TEXT NOT NULL DEFAULT '',
	last_sent_at       DATETIME NOT NULL,
	last_response_text TEXT NOT NULL DEFAULT '',
	last_response_at   DATETIME,
	created_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS templates (
	sort_order INTEGER PRIMARY KEY CHECK (sort_order > 0),
	content    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_sweep ON leads(phone_searched, expired, pipeline_stage);
CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status, last_sent_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const leadColumns = `id, url, title, phone_searched, expired, has_phone_hint, contacts, primary_phone, pipeline_stage, listing_status, created_at, updated_at`

func (s *SQLiteStore) InsertLead(ctx context.Context, lead *model.Lead) error {
	contacts, err := marshalContacts(lead.Contacts)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if lead.PipelineStage == "" {
		lead.PipelineStage = model.StageInbox
	}
	if lead.ListingStatus == "" {
		lead.ListingStatus = model.ListingStatusActive
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (url, title, phone_searched, expired, has_phone_hint, contacts, primary_phone, pipeline_stage, listing_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.URL, lead.Title, lead.PhoneSearched, lead.Expired, lead.HasPhoneHint, string(contacts),
		lead.PrimaryPhone, lead.PipelineStage, string(lead.ListingStatus), now, now,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return eris.Wrapf(ErrDuplicate, "sqlite: lead url %s", lead.URL)
		}
		return eris.Wrap(err, "sqlite: insert lead")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: lead id")
	}
	lead.ID = id
	lead.CreatedAt, lead.UpdatedAt = now, now
	return nil
}

func (s *SQLiteStore) FindLead(ctx context.Context, id int64) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find lead %d", id)
	}
	return l, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if filter.PhoneSearched != nil {
		query += ` AND phone_searched = ?`
		args = append(args, *filter.PhoneSearched)
	}
	if filter.Expired != nil {
		query += ` AND expired = ?`
		args = append(args, *filter.Expired)
	}
	if filter.PipelineStage != "" {
		query += ` AND pipeline_stage = ?`
		args = append(args, filter.PipelineStage)
	}
	if filter.HasContacts {
		query += ` AND json_array_length(contacts) > 0`
	}
	query += orderClause(filter.Order)
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) UpdateLead(ctx context.Context, id int64, u LeadUpdate) error {
	sets, err := leadAssignments(u, func(b []byte) any { return string(b) })
	if err != nil {
		return err
	}
	sets = append(sets, assignment{"updated_at", time.Now().UTC()})
	query, args := sqliteUpdate("leads", sets, id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead %d", id)
	}
	return checkRowsAffected(res, "lead", id)
}

const conversationColumns = `c.id, c.lead_id, c.status, c.stage, c.last_sent_message, c.last_sent_at, c.last_response_text, c.last_response_at, c.created_at`

func (s *SQLiteStore) HasConversation(ctx context.Context, leadID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE lead_id = ?`, leadID).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has conversation %d", leadID)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetConversationByLead(ctx context.Context, leadID int64) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.lead_id = ?`, leadID)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get conversation for lead %d", leadID)
	}
	return c, nil
}

func (s *SQLiteStore) InsertConversation(ctx context.Context, c *model.Conversation) error {
	now := time.Now().UTC()
	var respAt any
	if c.LastResponseAt != nil {
		respAt = c.LastResponseAt.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (lead_id, status, stage, last_sent_message, last_sent_at, last_response_text, last_response_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.LeadID, string(c.Status), c.Stage, c.LastSentMessage, c.LastSentAt.UTC(), c.LastResponseText, respAt, now,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return eris.Wrapf(ErrDuplicate, "sqlite: conversation for lead %d", c.LeadID)
		}
		return eris.Wrapf(err, "sqlite: insert conversation for lead %d", c.LeadID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: conversation id")
	}
	c.ID = id
	c.CreatedAt = now
	return nil
}

func (s *SQLiteStore) UpdateConversation(ctx context.Context, id int64, u ConversationUpdate) error {
	sets := conversationAssignments(u)
	if len(sets) == 0 {
		return nil
	}
	query, args := sqliteUpdate("conversations", sets, id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update conversation %d", id)
	}
	return checkRowsAffected(res, "conversation", id)
}

func (s *SQLiteStore) ListConversations(ctx context.Context, filter ConversationFilter) ([]model.ConversationWithLead, error) {
	query := `SELECT ` + conversationColumns + `, l.url, l.title
		FROM conversations c JOIN leads l ON l.id = c.lead_id WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND c.status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.SentBefore.IsZero() {
		query += ` AND c.last_sent_at < ?`
		args = append(args, filter.SentBefore.UTC())
	}
	query += ` ORDER BY c.last_sent_at ASC, c.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list conversations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ConversationWithLead
	for rows.Next() {
		var cw model.ConversationWithLead
		var respAt sql.NullTime
		err := rows.Scan(&cw.ID, &cw.LeadID, &cw.Status, &cw.Stage, &cw.LastSentMessage, &cw.LastSentAt,
			&cw.LastResponseText, &respAt, &cw.CreatedAt, &cw.ListingURL, &cw.LeadTitle)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan conversation")
		}
		if respAt.Valid {
			t := respAt.Time
			cw.LastResponseAt = &t
		}
		out = append(out, cw)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list conversations iterate")
}

func (s *SQLiteStore) TemplateByOrder(ctx context.Context, order int) (*model.Template, error) {
	var t model.Template
	err := s.db.QueryRowContext(ctx, `SELECT sort_order, content FROM templates WHERE sort_order = ?`, order).
		Scan(&t.Order, &t.Content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: template %d", order)
	}
	return &t, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]model.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sort_order, content FROM templates ORDER BY sort_order`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list templates")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Template
	for rows.Next() {
		var t model.Template
		if err := rows.Scan(&t.Order, &t.Content); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan template")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list templates iterate")
}

func (s *SQLiteStore) UpsertTemplate(ctx context.Context, t model.Template) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (sort_order, content) VALUES (?, ?)
		 ON CONFLICT (sort_order) DO UPDATE SET content = excluded.content`,
		t.Order, t.Content,
	)
	return eris.Wrapf(err, "sqlite: upsert template %d", t.Order)
}

// helpers

func orderClause(o LeadOrder) string {
	if o == OrderByPriority {
		return ` ORDER BY has_phone_hint DESC, id DESC`
	}
	return ` ORDER BY id ASC`
}

func sqliteUpdate(table string, sets []assignment, id int64) (string, []any) {
	cols := make([]string, 0, len(sets))
	args := make([]any, 0, len(sets)+1)
	for _, a := range sets {
		cols = append(cols, a.col+" = ?")
		args = append(args, a.val)
	}
	args = append(args, id)
	return fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, table, strings.Join(cols, ", ")), args
}

func isSQLiteUnique(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var contacts string
	err := row.Scan(&l.ID, &l.URL, &l.Title, &l.PhoneSearched, &l.Expired, &l.HasPhoneHint, &contacts,
		&l.PrimaryPhone, &l.PipelineStage, &l.ListingStatus, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if l.Contacts, err = unmarshalContacts([]byte(contacts)); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanConversation(row scannable) (*model.Conversation, error) {
	var c model.Conversation
	var respAt sql.NullTime
	err := row.Scan(&c.ID, &c.LeadID, &c.Status, &c.Stage, &c.LastSentMessage, &c.LastSentAt,
		&c.LastResponseText, &respAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if respAt.Valid {
		t := respAt.Time
		c.LastResponseAt = &t
	}
	return &c, nil
}
