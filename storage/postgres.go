// Package storage is the PostgreSQL persistence layer. The realtime actors
// treat it as write-behind: room state lives in memory while participants
// are connected, and is reloaded from here when a room is materialized.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nebulaz7/veil/domain"
	"github.com/Nebulaz7/veil/event"
)

// "23505" is the PostgreSQL error code for unique_violation
const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (pgr *PostgresRepo) Close() {
	pgr.pool.Close()
}

func wrapDBError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
}

// --- users ---

func (pgr *PostgresRepo) CreateUser(ctx context.Context, email, name, passwordHash string) (domain.User, error) {
	user := domain.User{Email: email, Name: name, PasswordHash: passwordHash}

	row := pgr.pool.QueryRow(ctx,
		"INSERT INTO users(email, name, password_hash) VALUES($1, $2, $3) RETURNING id, created_at",
		email, name, passwordHash)

	err := row.Scan(&user.Id, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.User{}, domain.ErrDuplicateEmail
		}
		return domain.User{}, wrapDBError(err)
	}

	return user, nil
}

func (pgr *PostgresRepo) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	user := domain.User{Email: email}

	row := pgr.pool.QueryRow(ctx,
		"SELECT id, name, picture, password_hash, created_at FROM users WHERE email = $1", email)

	err := row.Scan(&user.Id, &user.Name, &user.Picture, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, wrapDBError(err)
	}

	return user, nil
}

func (pgr *PostgresRepo) UserById(ctx context.Context, id string) (domain.User, error) {
	user := domain.User{Id: id}

	row := pgr.pool.QueryRow(ctx,
		"SELECT email, name, picture, password_hash, created_at FROM users WHERE id = $1", id)

	err := row.Scan(&user.Email, &user.Name, &user.Picture, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, wrapDBError(err)
	}

	return user, nil
}

func (pgr *PostgresRepo) UpsertOAuthUser(ctx context.Context, email, name, picture string) (domain.User, error) {
	user := domain.User{Email: email}

	row := pgr.pool.QueryRow(ctx, `
		INSERT INTO users(email, name, picture) VALUES($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, picture = EXCLUDED.picture
		RETURNING id, name, picture, created_at`,
		email, name, picture)

	err := row.Scan(&user.Id, &user.Name, &user.Picture, &user.CreatedAt)
	if err != nil {
		return domain.User{}, wrapDBError(err)
	}

	return user, nil
}

// --- rooms ---

func (pgr *PostgresRepo) CreateRoom(ctx context.Context, title, hostId string) (domain.Room, error) {
	room := domain.Room{Title: title, HostId: hostId}

	row := pgr.pool.QueryRow(ctx,
		"INSERT INTO rooms(title, host_id) VALUES($1, $2) RETURNING id, created_at",
		title, hostId)

	err := row.Scan(&room.Id, &room.CreatedAt)
	if err != nil {
		return domain.Room{}, wrapDBError(err)
	}

	return room, nil
}

func (pgr *PostgresRepo) RoomById(ctx context.Context, id string) (domain.Room, error) {
	room := domain.Room{Id: id}

	row := pgr.pool.QueryRow(ctx,
		"SELECT title, host_id, created_at FROM rooms WHERE id = $1", id)

	err := row.Scan(&room.Title, &room.HostId, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Room{}, domain.ErrRoomNotFound
		}
		return domain.Room{}, wrapDBError(err)
	}

	return room, nil
}

func (pgr *PostgresRepo) RoomExists(ctx context.Context, roomId string) (bool, error) {
	var exists bool
	err := pgr.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)", roomId).Scan(&exists)
	if err != nil {
		return false, wrapDBError(err)
	}
	return exists, nil
}

// --- questions ---

func (pgr *PostgresRepo) SaveQuestion(ctx context.Context, roomId string, q event.Question) error {
	_, err := pgr.pool.Exec(ctx, `
		INSERT INTO questions(id, room_id, author, question, ts_label, answered, answer)
		VALUES($1, $2, $3, $4, $5, $6, $7)`,
		q.Id, roomId, q.User, q.Question, q.Timestamp, q.Answered, q.Answer)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (pgr *PostgresRepo) SaveReply(ctx context.Context, roomId, questionId string, r event.Reply) error {
	_, err := pgr.pool.Exec(ctx, `
		INSERT INTO replies(id, question_id, author, content, ts_label)
		VALUES($1, $2, $3, $4, $5)`,
		r.Id, questionId, r.User, r.Content, r.Timestamp)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

// SetUpvotes replaces the upvoter set wholesale; the room actor owns the
// authoritative copy and pushes it down as-is.
func (pgr *PostgresRepo) SetUpvotes(ctx context.Context, questionId string, upvotedBy []string) error {
	tx, err := pgr.pool.Begin(ctx)
	if err != nil {
		return wrapDBError(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM question_upvotes WHERE question_id = $1", questionId); err != nil {
		return wrapDBError(err)
	}
	for _, voter := range upvotedBy {
		if _, err := tx.Exec(ctx,
			"INSERT INTO question_upvotes(question_id, voter) VALUES($1, $2)", questionId, voter); err != nil {
			return wrapDBError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapDBError(err)
	}
	return nil
}

// Questions loads a room's questions newest-first, with upvoter sets and
// replies attached, shaped exactly as the wire expects them.
func (pgr *PostgresRepo) Questions(ctx context.Context, roomId string) ([]event.Question, error) {
	rows, err := pgr.pool.Query(ctx, `
		SELECT id, author, question, ts_label, answered, answer
		FROM questions WHERE room_id = $1 ORDER BY created_at DESC`, roomId)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	questions := []event.Question{}
	index := map[string]int{}
	for rows.Next() {
		var q event.Question
		if err := rows.Scan(&q.Id, &q.User, &q.Question, &q.Timestamp, &q.Answered, &q.Answer); err != nil {
			return nil, wrapDBError(err)
		}
		q.UpvotedBy = []string{}
		q.Replies = []event.Reply{}
		index[q.Id] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err)
	}

	upvotes, err := pgr.pool.Query(ctx, `
		SELECT u.question_id, u.voter
		FROM question_upvotes u JOIN questions q ON q.id = u.question_id
		WHERE q.room_id = $1`, roomId)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer upvotes.Close()
	for upvotes.Next() {
		var questionId, voter string
		if err := upvotes.Scan(&questionId, &voter); err != nil {
			return nil, wrapDBError(err)
		}
		if i, ok := index[questionId]; ok {
			questions[i].UpvotedBy = append(questions[i].UpvotedBy, voter)
		}
	}
	if err := upvotes.Err(); err != nil {
		return nil, wrapDBError(err)
	}

	replies, err := pgr.pool.Query(ctx, `
		SELECT r.question_id, r.id, r.author, r.content, r.ts_label
		FROM replies r JOIN questions q ON q.id = r.question_id
		WHERE q.room_id = $1 ORDER BY r.created_at ASC`, roomId)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer replies.Close()
	for replies.Next() {
		var questionId string
		var reply event.Reply
		if err := replies.Scan(&questionId, &reply.Id, &reply.User, &reply.Content, &reply.Timestamp); err != nil {
			return nil, wrapDBError(err)
		}
		if i, ok := index[questionId]; ok {
			questions[i].Replies = append(questions[i].Replies, reply)
		}
	}
	if err := replies.Err(); err != nil {
		return nil, wrapDBError(err)
	}

	for i := range questions {
		questions[i].Upvotes = len(questions[i].UpvotedBy)
	}
	return questions, nil
}

// --- polls ---

func (pgr *PostgresRepo) SavePoll(ctx context.Context, roomId string, p event.Poll, expiresAt *time.Time) error {
	tx, err := pgr.pool.Begin(ctx)
	if err != nil {
		return wrapDBError(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"INSERT INTO polls(id, room_id, question, expires_at) VALUES($1, $2, $3, $4)",
		p.Id, roomId, p.Question, expiresAt); err != nil {
		return wrapDBError(err)
	}
	for i, opt := range p.Options {
		if _, err := tx.Exec(ctx,
			"INSERT INTO poll_options(id, poll_id, idx, text) VALUES($1, $2, $3, $4)",
			opt.Id, p.Id, i, opt.Text); err != nil {
			return wrapDBError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapDBError(err)
	}
	return nil
}

// SaveVote records a single-choice vote; voting again moves the vote.
func (pgr *PostgresRepo) SaveVote(ctx context.Context, pollId, userId, optionId string) error {
	_, err := pgr.pool.Exec(ctx, `
		INSERT INTO poll_votes(poll_id, voter, option_id) VALUES($1, $2, $3)
		ON CONFLICT (poll_id, voter) DO UPDATE SET option_id = EXCLUDED.option_id`,
		pollId, userId, optionId)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (pgr *PostgresRepo) MarkPollClosed(ctx context.Context, pollId string) error {
	_, err := pgr.pool.Exec(ctx, "UPDATE polls SET closed = TRUE WHERE id = $1", pollId)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (pgr *PostgresRepo) ActivePolls(ctx context.Context, roomId string) ([]event.Poll, error) {
	rows, err := pgr.pool.Query(ctx, `
		SELECT id, question FROM polls
		WHERE room_id = $1 AND NOT closed AND (expires_at IS NULL OR expires_at > now())
		ORDER BY created_at DESC`, roomId)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	polls := []event.Poll{}
	for rows.Next() {
		var p event.Poll
		if err := rows.Scan(&p.Id, &p.Question); err != nil {
			return nil, wrapDBError(err)
		}
		polls = append(polls, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err)
	}

	for i := range polls {
		options, err := pgr.pollOptions(ctx, polls[i].Id)
		if err != nil {
			return nil, err
		}
		polls[i].Options = options
		polls[i].Recompute()
	}
	return polls, nil
}

func (pgr *PostgresRepo) pollOptions(ctx context.Context, pollId string) ([]event.PollOption, error) {
	rows, err := pgr.pool.Query(ctx, `
		SELECT o.id, o.text, COUNT(v.voter)
		FROM poll_options o
		LEFT JOIN poll_votes v ON v.option_id = o.id
		WHERE o.poll_id = $1
		GROUP BY o.id, o.text, o.idx
		ORDER BY o.idx ASC`, pollId)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	options := []event.PollOption{}
	for rows.Next() {
		var opt event.PollOption
		if err := rows.Scan(&opt.Id, &opt.Text, &opt.Votes); err != nil {
			return nil, wrapDBError(err)
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err)
	}
	return options, nil
}

// PollVoters returns the option each voter currently holds on the poll.
func (pgr *PostgresRepo) PollVoters(ctx context.Context, pollId string) (map[string]string, error) {
	rows, err := pgr.pool.Query(ctx,
		"SELECT voter, option_id FROM poll_votes WHERE poll_id = $1", pollId)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	voters := map[string]string{}
	for rows.Next() {
		var voter, optionId string
		if err := rows.Scan(&voter, &optionId); err != nil {
			return nil, wrapDBError(err)
		}
		voters[voter] = optionId
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err)
	}
	return voters, nil
}

// PollExpiry returns the poll's expiry instant, zero when it never expires.
func (pgr *PostgresRepo) PollExpiry(ctx context.Context, pollId string) (time.Time, error) {
	var expiresAt *time.Time
	err := pgr.pool.QueryRow(ctx,
		"SELECT expires_at FROM polls WHERE id = $1", pollId).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, domain.ErrPollNotFound
		}
		return time.Time{}, wrapDBError(err)
	}
	if expiresAt == nil {
		return time.Time{}, nil
	}
	return *expiresAt, nil
}

// VoteByIndex is the REST vote path: the option is addressed by position,
// the vote is arbitrated here, and the reloaded poll is returned for
// broadcasting.
func (pgr *PostgresRepo) VoteByIndex(ctx context.Context, pollId, userId string, optionIndex int) (string, event.Poll, error) {
	var roomId, question string
	err := pgr.pool.QueryRow(ctx,
		"SELECT room_id, question FROM polls WHERE id = $1 AND NOT closed", pollId).
		Scan(&roomId, &question)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", event.Poll{}, domain.ErrPollNotFound
		}
		return "", event.Poll{}, wrapDBError(err)
	}

	var optionId string
	err = pgr.pool.QueryRow(ctx,
		"SELECT id FROM poll_options WHERE poll_id = $1 AND idx = $2", pollId, optionIndex).
		Scan(&optionId)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", event.Poll{}, domain.ErrOptionNotFound
		}
		return "", event.Poll{}, wrapDBError(err)
	}

	if err := pgr.SaveVote(ctx, pollId, userId, optionId); err != nil {
		return "", event.Poll{}, err
	}

	options, err := pgr.pollOptions(ctx, pollId)
	if err != nil {
		return "", event.Poll{}, err
	}
	updated := event.Poll{Id: pollId, Question: question, Options: options}
	updated.Recompute()

	return roomId, updated, nil
}
