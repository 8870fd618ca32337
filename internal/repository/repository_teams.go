package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"medrelief/internal/models"
)

const teamColumns = `
		id,
		type,
		name,
		address,
		main_text,
		verified,
		inspector_id,
		wechat_qrcode,
		add_time`

func scanTeam(row rowScanner, team *models.Team) error {
	return row.Scan(&team.Id, &team.Type, &team.Name, &team.Address, &team.MainText, &team.Verified, &team.Inspector, &team.WechatQRCode, &team.AddTime)
}

func prepTeamsQuery(q models.TeamQuery) (query string, queryParams []interface{}) {
	query = `
	SELECT` + teamColumns + `
	FROM teams
	$conditions$
	ORDER BY add_time DESC
	LIMIT $1
	OFFSET $2
	`

	queryParams = make([]interface{}, 0, 8)
	conditions := make([]string, 0, 6)

	queryParams = append(queryParams, limitParam(q.Limit), q.Offset)

	add := func(cond string, param interface{}) {
		conditions = append(conditions, cond)
		queryParams = append(queryParams, param)
	}

	if q.Id.Valid {
		add("id = $$", q.Id.UUID)
	}

	if len(q.Name) > 0 {
		add("name = $$", q.Name)
	} else if len(q.FuzzyName) > 0 {
		add("name ILIKE $$", containsPattern(q.FuzzyName))
	}

	if len(q.Address) > 0 {
		add("address = $$", q.Address)
	} else if len(q.FuzzyAddress) > 0 {
		add("address ILIKE $$", containsPattern(q.FuzzyAddress))
	}

	if q.Inspector.Valid {
		add("inspector_id = $$", q.Inspector.UUID)
	}

	if q.Owner.Valid {
		add("inspector_id = $$", q.Owner.UUID)
	}

	if q.Verified != nil {
		add("verified = $$", *q.Verified)
	}

	query = strings.Replace(query, "$conditions$", whereClause(conditions, 3), -1)
	return query, queryParams
}

func (repo *Repository) GetTeams(ctx context.Context, q models.TeamQuery) ([]models.Team, error) {
	result, err := getTeams(ctx, repo.db, q)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetTeams: %w", err)
	}
	return result, nil
}

func (repo *Repository) GetTeamByUUID(ctx context.Context, id uuid.UUID) (models.Team, error) {
	team, err := getTeamByUUID(ctx, repo.db, id)
	if err != nil {
		return team, fmt.Errorf("repository.Repository.GetTeamByUUID: %w", err)
	}
	return team, nil
}

func getTeams(ctx context.Context, db querier, q models.TeamQuery) ([]models.Team, error) {
	query, queryParams := prepTeamsQuery(q)

	rows, err := db.QueryContext(ctx, query, queryParams...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.Team{}
	for rows.Next() {
		var team models.Team
		err = scanTeam(rows, &team)
		if err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		result = append(result, team)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	err = loadTeamContacts(ctx, db, result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func getTeamByUUID(ctx context.Context, db querier, id uuid.UUID) (models.Team, error) {
	teams, err := getTeams(ctx, db, models.TeamQuery{Limit: 1, Id: uuid.NullUUID{UUID: id, Valid: true}})
	if err != nil {
		return models.Team{}, err
	}
	if len(teams) == 0 {
		return models.Team{}, fmt.Errorf("no team found by UUID %s: %w", id, models.ErrNotFound)
	}
	return teams[0], nil
}

func loadTeamContacts(ctx context.Context, db querier, teams []models.Team) error {
	if len(teams) == 0 {
		return nil
	}

	index := make(map[uuid.UUID]int, len(teams))
	ids := make([]uuid.UUID, 0, len(teams))
	for i := range teams {
		index[teams[i].Id] = i
		ids = append(ids, teams[i].Id)
		teams[i].Contacts = []models.TeamContact{}
	}

	rows, err := db.QueryContext(ctx, `
	SELECT id, team_id, name, phone, add_time
	FROM team_contacts
	WHERE team_id = ANY($1::uuid[])
	ORDER BY add_time DESC, phone
	`, pq.Array(idStrings(ids)))
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.TeamContact
		if err = rows.Scan(&c.Id, &c.TeamId, &c.Name, &c.Phone, &c.AddTime); err != nil {
			return fmt.Errorf("load contacts: row scan failed: %w", err)
		}
		i := index[c.TeamId]
		teams[i].Contacts = append(teams[i].Contacts, c)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}
	return nil
}

//// Writes

func (t *sqlTx) GetOrCreateTeam(ctx context.Context, team models.Team) (models.Team, bool, error) {
	insert := func() (models.Team, error) {
		var result models.Team
		query := `
		INSERT INTO teams
			(type, name, address, main_text, verified, inspector_id, wechat_qrcode)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO NOTHING
		RETURNING` + teamColumns

		row := t.tx.QueryRowContext(ctx, query, team.Type, team.Name, team.Address, team.MainText, team.Verified, team.Inspector, team.WechatQRCode)
		err := scanTeam(row, &result)
		return result, err
	}

	find := func() (models.Team, error) {
		var result models.Team
		query := `
		SELECT` + teamColumns + `
		FROM teams
		WHERE name = $1
		FOR UPDATE
		`
		err := scanTeam(t.tx.QueryRowContext(ctx, query, team.Name), &result)
		return result, err
	}

	result, created, err := getOrCreate(insert, find)
	if err != nil {
		return result, false, fmt.Errorf("repository.Tx.GetOrCreateTeam: %w", err)
	}
	return result, created, nil
}

func (t *sqlTx) TeamForUpdate(ctx context.Context, id uuid.UUID) (models.Team, error) {
	var result models.Team
	query := `
	SELECT` + teamColumns + `
	FROM teams
	WHERE id = $1
	FOR UPDATE
	`
	err := scanTeam(t.tx.QueryRowContext(ctx, query, id), &result)
	if errors.Is(err, sql.ErrNoRows) {
		return result, fmt.Errorf("repository.Tx.TeamForUpdate: %s: %w", id, models.ErrNotFound)
	} else if err != nil {
		return result, fmt.Errorf("repository.Tx.TeamForUpdate: %w", err)
	}
	return result, nil
}

func (t *sqlTx) LoadTeam(ctx context.Context, id uuid.UUID) (models.Team, error) {
	team, err := getTeamByUUID(ctx, t.tx, id)
	if err != nil {
		return team, fmt.Errorf("repository.Tx.LoadTeam: %w", err)
	}
	return team, nil
}

func (t *sqlTx) AddTeam(ctx context.Context, team models.Team) (models.Team, error) {
	var result models.Team
	query := `
	INSERT INTO teams
		(type, name, address, main_text, verified, inspector_id, wechat_qrcode)
	VALUES
		($1, $2, $3, $4, $5, $6, $7)
	RETURNING` + teamColumns

	row := t.tx.QueryRowContext(ctx, query, team.Type, team.Name, team.Address, team.MainText, team.Verified, team.Inspector, team.WechatQRCode)
	err := scanTeam(row, &result)
	if err != nil {
		return result, wrapWriteErr("repository.Tx.AddTeam", err)
	}
	return result, nil
}

func (t *sqlTx) UpdateTeam(ctx context.Context, team models.Team) error {
	query := `
	UPDATE teams
	SET (type, name, address, main_text, verified, inspector_id, wechat_qrcode) =
	($1, $2, $3, $4, $5, $6, $7)
	WHERE id = $8
	`
	res, err := t.tx.ExecContext(ctx, query, team.Type, team.Name, team.Address, team.MainText, team.Verified, team.Inspector, team.WechatQRCode, team.Id)
	if err != nil {
		return wrapWriteErr("repository.Tx.UpdateTeam", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("repository.Tx.UpdateTeam: %s: %w", team.Id, models.ErrNotFound)
	}
	return nil
}

func (t *sqlTx) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM teams WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("repository.Tx.DeleteTeam: %w", err)
	}
	return nil
}

func (t *sqlTx) UpsertTeamContact(ctx context.Context, teamId uuid.UUID, contact models.TeamContact) (models.TeamContact, error) {
	var result models.TeamContact
	query := `
	INSERT INTO team_contacts
		(team_id, name, phone)
	VALUES
		($1, $2, $3)
	ON CONFLICT (team_id, phone) DO UPDATE SET name = EXCLUDED.name
	RETURNING id, team_id, name, phone, add_time
	`
	row := t.tx.QueryRowContext(ctx, query, teamId, contact.Name, contact.Phone)
	err := row.Scan(&result.Id, &result.TeamId, &result.Name, &result.Phone, &result.AddTime)
	if err != nil {
		return result, wrapWriteErr("repository.Tx.UpsertTeamContact", err)
	}
	return result, nil
}

func (t *sqlTx) DeleteTeamContactsExcept(ctx context.Context, teamId uuid.UUID, phones []string) error {
	query := `
	DELETE FROM team_contacts
	WHERE team_id = $1 AND NOT (phone = ANY($2))
	`
	_, err := t.tx.ExecContext(ctx, query, teamId, pq.Array(phones))
	if err != nil {
		return fmt.Errorf("repository.Tx.DeleteTeamContactsExcept: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteTeamContact(ctx context.Context, teamId, contactId uuid.UUID) (bool, error) {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM team_contacts WHERE id = $1 AND team_id = $2", contactId, teamId)
	if err != nil {
		return false, fmt.Errorf("repository.Tx.DeleteTeamContact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repository.Tx.DeleteTeamContact: %w", err)
	}
	return n > 0, nil
}
