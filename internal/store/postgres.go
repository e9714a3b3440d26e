package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id             BIGSERIAL PRIMARY KEY,
	url            TEXT NOT NULL UNIQUE,
	title          TEXT NOT NULL DEFAULT '',
	phone_searched BOOLEAN NOT NULL DEFAULT false,
	expired        BOOLEAN NOT NULL DEFAULT false,
	has_phone_hint BOOLEAN NOT NULL DEFAULT false,
	contacts       JSONB NOT NULL DEFAULT '[]'::jsonb,
	primary_phone  TEXT NOT NULL DEFAULT '',
	pipeline_stage TEXT NOT NULL DEFAULT 'inbox',
	listing_status TEXT NOT NULL DEFAULT 'active',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
	id                 BIGSERIAL PRIMARY KEY,
	lead_id            BIGINT NOT NULL UNIQUE REFERENCES leads(id),
	status             TEXT NOT NULL,
	stage              INTEGER NOT NULL CHECK (stage > 0),
	last_sent_message  TEXT NOT NULL DEFAULT '',
	last_sent_at       TIMESTAMPTZ NOT NULL,
	last_response_text TEXT NOT NULL DEFAULT '',
	last_response_at   TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS templates (
	sort_order INTEGER PRIMARY KEY CHECK (sort_order > 0),
	content    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_sweep ON leads(phone_searched, expired, pipeline_stage);
CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status, last_sent_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertLead(ctx context.Context, lead *model.Lead) error {
	contacts, err := marshalContacts(lead.Contacts)
	if err != nil {
		return err
	}
	if lead.PipelineStage == "" {
		lead.PipelineStage = model.StageInbox
	}
	if lead.ListingStatus == "" {
		lead.ListingStatus = model.ListingStatusActive
	}
	now := time.Now().UTC()

	err = s.pool.QueryRow(ctx,
		`INSERT INTO leads (url, title, phone_searched, expired, has_phone_hint, contacts, primary_phone, pipeline_stage, listing_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		lead.URL, lead.Title, lead.PhoneSearched, lead.Expired, lead.HasPhoneHint, contacts,
		lead.PrimaryPhone, lead.PipelineStage, string(lead.ListingStatus), now, now,
	).Scan(&lead.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrapf(ErrDuplicate, "postgres: lead url %s", lead.URL)
		}
		return eris.Wrap(err, "postgres: insert lead")
	}
	lead.CreatedAt, lead.UpdatedAt = now, now
	return nil
}

func (s *PostgresStore) FindLead(ctx context.Context, id int64) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	l, err := scanPgLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find lead %d", id)
	}
	return l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.PhoneSearched != nil {
		query += ` AND phone_searched = ` + arg(*filter.PhoneSearched)
	}
	if filter.Expired != nil {
		query += ` AND expired = ` + arg(*filter.Expired)
	}
	if filter.PipelineStage != "" {
		query += ` AND pipeline_stage = ` + arg(filter.PipelineStage)
	}
	if filter.HasContacts {
		query += ` AND jsonb_array_length(contacts) > 0`
	}
	query += orderClause(filter.Order)
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanPgLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) UpdateLead(ctx context.Context, id int64, u LeadUpdate) error {
	sets, err := leadAssignments(u, func(b []byte) any { return b })
	if err != nil {
		return err
	}
	sets = append(sets, assignment{"updated_at", time.Now().UTC()})
	query, args := pgUpdate("leads", sets, id)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lead %d", id)
	}
	return nil
}

func (s *PostgresStore) HasConversation(ctx context.Context, leadID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE lead_id = $1)`, leadID).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has conversation %d", leadID)
	}
	return exists, nil
}

func (s *PostgresStore) GetConversationByLead(ctx context.Context, leadID int64) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.lead_id = $1`, leadID)
	var c model.Conversation
	var status string
	err := row.Scan(&c.ID, &c.LeadID, &status, &c.Stage, &c.LastSentMessage, &c.LastSentAt,
		&c.LastResponseText, &c.LastResponseAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get conversation for lead %d", leadID)
	}
	c.Status = model.ConversationStatus(status)
	return &c, nil
}

func (s *PostgresStore) InsertConversation(ctx context.Context, c *model.Conversation) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (lead_id, status, stage, last_sent_message, last_sent_at, last_response_text, last_response_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		c.LeadID, string(c.Status), c.Stage, c.LastSentMessage, c.LastSentAt.UTC(), c.LastResponseText, c.LastResponseAt, now,
	).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrapf(ErrDuplicate, "postgres: conversation for lead %d", c.LeadID)
		}
		return eris.Wrapf(err, "postgres: insert conversation for lead %d", c.LeadID)
	}
	c.CreatedAt = now
	return nil
}

func (s *PostgresStore) UpdateConversation(ctx context.Context, id int64, u ConversationUpdate) error {
	sets := conversationAssignments(u)
	if len(sets) == 0 {
		return nil
	}
	query, args := pgUpdate("conversations", sets, id)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update conversation %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "conversation %d", id)
	}
	return nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, filter ConversationFilter) ([]model.ConversationWithLead, error) {
	query := `SELECT ` + conversationColumns + `, l.url, l.title
		FROM conversations c JOIN leads l ON l.id = c.lead_id WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND c.status = $%d`, len(args))
	}
	if !filter.SentBefore.IsZero() {
		args = append(args, filter.SentBefore.UTC())
		query += fmt.Sprintf(` AND c.last_sent_at < $%d`, len(args))
	}
	query += ` ORDER BY c.last_sent_at ASC, c.id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list conversations")
	}
	defer rows.Close()

	var out []model.ConversationWithLead
	for rows.Next() {
		var cw model.ConversationWithLead
		var status string
		err := rows.Scan(&cw.ID, &cw.LeadID, &status, &cw.Stage, &cw.LastSentMessage, &cw.LastSentAt,
			&cw.LastResponseText, &cw.LastResponseAt, &cw.CreatedAt, &cw.ListingURL, &cw.LeadTitle)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan conversation")
		}
		cw.Status = model.ConversationStatus(status)
		out = append(out, cw)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list conversations iterate")
}

func (s *PostgresStore) TemplateByOrder(ctx context.Context, order int) (*model.Template, error) {
	var t model.Template
	err := s.pool.QueryRow(ctx, `SELECT sort_order, content FROM templates WHERE sort_order = $1`, order).
		Scan(&t.Order, &t.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: template %d", order)
	}
	return &t, nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]model.Template, error) {
	rows, err := s.pool.Query(ctx, `SELECT sort_order, content FROM templates ORDER BY sort_order`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list templates")
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		var t model.Template
		if err := rows.Scan(&t.Order, &t.Content); err != nil {
			return nil, eris.Wrap(err, "postgres: scan template")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list templates iterate")
}

func (s *PostgresStore) UpsertTemplate(ctx context.Context, t model.Template) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO templates (sort_order, content) VALUES ($1, $2)
		 ON CONFLICT (sort_order) DO UPDATE SET content = EXCLUDED.content`,
		t.Order, t.Content,
	)
	return eris.Wrapf(err, "postgres: upsert template %d", t.Order)
}

func pgUpdate(table string, sets []assignment, id int64) (string, []any) {
	cols := make([]string, 0, len(sets))
	args := make([]any, 0, len(sets)+1)
	for i, a := range sets {
		cols = append(cols, fmt.Sprintf("%s = $%d", a.col, i+1))
		args = append(args, a.val)
	}
	args = append(args, id)
	return fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, table, strings.Join(cols, ", "), len(args)), args
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanPgLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var contacts []byte
	var status string
	err := row.Scan(&l.ID, &l.URL, &l.Title, &l.PhoneSearched, &l.Expired, &l.HasPhoneHint, &contacts,
		&l.PrimaryPhone, &l.PipelineStage, &status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.ListingStatus = model.ListingStatus(status)
	if l.Contacts, err = unmarshalContacts(contacts); err != nil {
		return nil, err
	}
	return &l, nil
}
