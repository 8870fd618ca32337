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

const organizationColumns = `
		id,
		province,
		city,
		name,
		address,
		source,
		verified,
		is_manual,
		inspector_id,
		emergency,
		add_time`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner, org *models.Organization) error {
	return row.Scan(&org.Id, &org.Province, &org.City, &org.Name, &org.Address, &org.Source, &org.Verified, &org.IsManual, &org.Inspector, &org.Emergency, &org.AddTime)
}

func prepOrganizationsQuery(q models.OrganizationQuery) (query string, queryParams []interface{}) {
	query = `
	SELECT` + organizationColumns + `
	FROM organizations
	$conditions$
	ORDER BY emergency ASC, add_time DESC
	LIMIT $1
	OFFSET $2
	`

	queryParams = make([]interface{}, 0, 12)
	conditions := make([]string, 0, 10)

	queryParams = append(queryParams, limitParam(q.Limit), q.Offset)

	add := func(cond string, param interface{}) {
		conditions = append(conditions, cond)
		queryParams = append(queryParams, param)
	}

	if q.Id.Valid {
		add("id = $$", q.Id.UUID)
	}

	if len(q.Province) > 0 {
		add("province = $$", q.Province)
	} else {
		switch q.Scope {
		case models.ScopeWuhan:
			add("province = $$", q.Home.Province)
			add("city = $$", q.Home.City)
		case models.ScopeHubei:
			add("province = $$", q.Home.Province)
			add("city <> $$", q.Home.City)
		case models.ScopeChina:
			add("province <> $$", q.Home.Province)
		}
	}

	if len(q.City) > 0 {
		add("city = $$", q.City)
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

func (repo *Repository) GetOrganizations(ctx context.Context, q models.OrganizationQuery) ([]models.Organization, error) {
	result, err := getOrganizations(ctx, repo.db, q)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetOrganizations: %w", err)
	}
	return result, nil
}

func (repo *Repository) GetOrganizationByUUID(ctx context.Context, id uuid.UUID) (models.Organization, error) {
	org, err := getOrganizationByUUID(ctx, repo.db, id)
	if err != nil {
		return org, fmt.Errorf("repository.Repository.GetOrganizationByUUID: %w", err)
	}
	return org, nil
}

func getOrganizations(ctx context.Context, db querier, q models.OrganizationQuery) ([]models.Organization, error) {
	query, queryParams := prepOrganizationsQuery(q)

	rows, err := db.QueryContext(ctx, query, queryParams...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.Organization{}
	for rows.Next() {
		var org models.Organization
		err = scanOrganization(rows, &org)
		if err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		result = append(result, org)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	err = loadOrganizationChildren(ctx, db, result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func getOrganizationByUUID(ctx context.Context, db querier, id uuid.UUID) (models.Organization, error) {
	orgs, err := getOrganizations(ctx, db, models.OrganizationQuery{Limit: 1, Id: uuid.NullUUID{UUID: id, Valid: true}})
	if err != nil {
		return models.Organization{}, err
	}
	if len(orgs) == 0 {
		return models.Organization{}, fmt.Errorf("no organization found by UUID %s: %w", id, models.ErrNotFound)
	}
	return orgs[0], nil
}

// loadOrganizationChildren fills contacts and demands of orgs with one query per child table.
func loadOrganizationChildren(ctx context.Context, db querier, orgs []models.Organization) error {
	if len(orgs) == 0 {
		return nil
	}

	index := make(map[uuid.UUID]int, len(orgs))
	ids := make([]uuid.UUID, 0, len(orgs))
	for i := range orgs {
		index[orgs[i].Id] = i
		ids = append(ids, orgs[i].Id)
		orgs[i].Contacts = []models.OrganizationContact{}
		orgs[i].Demands = []models.OrganizationDemand{}
	}

	rows, err := db.QueryContext(ctx, `
	SELECT id, organization_id, name, phone, add_time
	FROM organization_contacts
	WHERE organization_id = ANY($1::uuid[])
	ORDER BY add_time DESC, phone
	`, pq.Array(idStrings(ids)))
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.OrganizationContact
		if err = rows.Scan(&c.Id, &c.OrganizationId, &c.Name, &c.Phone, &c.AddTime); err != nil {
			return fmt.Errorf("load contacts: row scan failed: %w", err)
		}
		i := index[c.OrganizationId]
		orgs[i].Contacts = append(orgs[i].Contacts, c)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}

	drows, err := db.QueryContext(ctx, `
	SELECT id, organization_id, name, remark, amount, receive_amount, add_time
	FROM organization_demands
	WHERE organization_id = ANY($1::uuid[])
	ORDER BY add_time DESC, name
	`, pq.Array(idStrings(ids)))
	if err != nil {
		return fmt.Errorf("load demands: %w", err)
	}
	defer drows.Close()

	for drows.Next() {
		var d models.OrganizationDemand
		if err = drows.Scan(&d.Id, &d.OrganizationId, &d.Name, &d.Remark, &d.Amount, &d.ReceiveAmount, &d.AddTime); err != nil {
			return fmt.Errorf("load demands: row scan failed: %w", err)
		}
		i := index[d.OrganizationId]
		orgs[i].Demands = append(orgs[i].Demands, d)
	}
	if err = drows.Err(); err != nil {
		return fmt.Errorf("load demands: %w", err)
	}

	return nil
}

//// Writes

// GetOrCreateOrganization inserts org unless its natural key is taken, in which
// case the stored row is returned locked for update.
func (t *sqlTx) GetOrCreateOrganization(ctx context.Context, org models.Organization) (models.Organization, bool, error) {
	insert := func() (models.Organization, error) {
		var result models.Organization
		query := `
		INSERT INTO organizations
			(province, city, name, address, source, verified, is_manual, inspector_id, emergency)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (province, city, name) DO NOTHING
		RETURNING` + organizationColumns

		row := t.tx.QueryRowContext(ctx, query, org.Province, org.City, org.Name, org.Address, org.Source, org.Verified, org.IsManual, org.Inspector, org.Emergency)
		err := scanOrganization(row, &result)
		return result, err
	}

	find := func() (models.Organization, error) {
		var result models.Organization
		query := `
		SELECT` + organizationColumns + `
		FROM organizations
		WHERE province = $1 AND city = $2 AND name = $3
		FOR UPDATE
		`
		err := scanOrganization(t.tx.QueryRowContext(ctx, query, org.Province, org.City, org.Name), &result)
		return result, err
	}

	result, created, err := getOrCreate(insert, find)
	if err != nil {
		return result, false, fmt.Errorf("repository.Tx.GetOrCreateOrganization: %w", err)
	}
	return result, created, nil
}

func (t *sqlTx) OrganizationForUpdate(ctx context.Context, id uuid.UUID) (models.Organization, error) {
	var result models.Organization
	query := `
	SELECT` + organizationColumns + `
	FROM organizations
	WHERE id = $1
	FOR UPDATE
	`
	err := scanOrganization(t.tx.QueryRowContext(ctx, query, id), &result)
	if errors.Is(err, sql.ErrNoRows) {
		return result, fmt.Errorf("repository.Tx.OrganizationForUpdate: %s: %w", id, models.ErrNotFound)
	} else if err != nil {
		return result, fmt.Errorf("repository.Tx.OrganizationForUpdate: %w", err)
	}
	return result, nil
}

func (t *sqlTx) LoadOrganization(ctx context.Context, id uuid.UUID) (models.Organization, error) {
	org, err := getOrganizationByUUID(ctx, t.tx, id)
	if err != nil {
		return org, fmt.Errorf("repository.Tx.LoadOrganization: %w", err)
	}
	return org, nil
}

func (t *sqlTx) AddOrganization(ctx context.Context, org models.Organization) (models.Organization, error) {
	var result models.Organization
	query := `
	INSERT INTO organizations
		(province, city, name, address, source, verified, is_manual, inspector_id, emergency)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING` + organizationColumns

	row := t.tx.QueryRowContext(ctx, query, org.Province, org.City, org.Name, org.Address, org.Source, org.Verified, org.IsManual, org.Inspector, org.Emergency)
	err := scanOrganization(row, &result)
	if err != nil {
		return result, wrapWriteErr("repository.Tx.AddOrganization", err)
	}
	return result, nil
}

// UpdateOrganization writes every column except id and add_time.
func (t *sqlTx) UpdateOrganization(ctx context.Context, org models.Organization) error {
	query := `
	UPDATE organizations
	SET (province, city, name, address, source, verified, is_manual, inspector_id, emergency) =
	($1, $2, $3, $4, $5, $6, $7, $8, $9)
	WHERE id = $10
	`
	res, err := t.tx.ExecContext(ctx, query, org.Province, org.City, org.Name, org.Address, org.Source, org.Verified, org.IsManual, org.Inspector, org.Emergency, org.Id)
	if err != nil {
		return wrapWriteErr("repository.Tx.UpdateOrganization", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("repository.Tx.UpdateOrganization: %s: %w", org.Id, models.ErrNotFound)
	}
	return nil
}

// DeleteOrganization removes the row; contacts and demands go with it by cascade.
func (t *sqlTx) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM organizations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("repository.Tx.DeleteOrganization: %w", err)
	}
	return nil
}

//// Contacts and demands

func (t *sqlTx) UpsertOrganizationContact(ctx context.Context, orgId uuid.UUID, contact models.OrganizationContact) (models.OrganizationContact, error) {
	var result models.OrganizationContact
	query := `
	INSERT INTO organization_contacts
		(organization_id, name, phone)
	VALUES
		($1, $2, $3)
	ON CONFLICT (organization_id, phone) DO UPDATE SET name = EXCLUDED.name
	RETURNING id, organization_id, name, phone, add_time
	`
	row := t.tx.QueryRowContext(ctx, query, orgId, contact.Name, contact.Phone)
	err := row.Scan(&result.Id, &result.OrganizationId, &result.Name, &result.Phone, &result.AddTime)
	if err != nil {
		return result, wrapWriteErr("repository.Tx.UpsertOrganizationContact", err)
	}
	return result, nil
}

func (t *sqlTx) DeleteOrganizationContactsExcept(ctx context.Context, orgId uuid.UUID, phones []string) error {
	query := `
	DELETE FROM organization_contacts
	WHERE organization_id = $1 AND NOT (phone = ANY($2))
	`
	_, err := t.tx.ExecContext(ctx, query, orgId, pq.Array(phones))
	if err != nil {
		return fmt.Errorf("repository.Tx.DeleteOrganizationContactsExcept: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteOrganizationContact(ctx context.Context, orgId, contactId uuid.UUID) (bool, error) {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM organization_contacts WHERE id = $1 AND organization_id = $2", contactId, orgId)
	if err != nil {
		return false, fmt.Errorf("repository.Tx.DeleteOrganizationContact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repository.Tx.DeleteOrganizationContact: %w", err)
	}
	return n > 0, nil
}

func (t *sqlTx) UpsertOrganizationDemand(ctx context.Context, orgId uuid.UUID, demand models.OrganizationDemand) (models.OrganizationDemand, error) {
	var result models.OrganizationDemand
	query := `
	INSERT INTO organization_demands
		(organization_id, name, remark, amount, receive_amount)
	VALUES
		($1, $2, $3, $4, $5)
	ON CONFLICT (organization_id, name) DO UPDATE SET
		(remark, amount, receive_amount) = (EXCLUDED.remark, EXCLUDED.amount, EXCLUDED.receive_amount)
	RETURNING id, organization_id, name, remark, amount, receive_amount, add_time
	`
	row := t.tx.QueryRowContext(ctx, query, orgId, demand.Name, demand.Remark, demand.Amount, demand.ReceiveAmount)
	err := row.Scan(&result.Id, &result.OrganizationId, &result.Name, &result.Remark, &result.Amount, &result.ReceiveAmount, &result.AddTime)
	if err != nil {
		return result, wrapWriteErr("repository.Tx.UpsertOrganizationDemand", err)
	}
	return result, nil
}

func (t *sqlTx) DeleteOrganizationDemandsExcept(ctx context.Context, orgId uuid.UUID, names []string) error {
	query := `
	DELETE FROM organization_demands
	WHERE organization_id = $1 AND NOT (name = ANY($2))
	`
	_, err := t.tx.ExecContext(ctx, query, orgId, pq.Array(names))
	if err != nil {
		return fmt.Errorf("repository.Tx.DeleteOrganizationDemandsExcept: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteOrganizationDemand(ctx context.Context, orgId, demandId uuid.UUID) (bool, error) {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM organization_demands WHERE id = $1 AND organization_id = $2", demandId, orgId)
	if err != nil {
		return false, fmt.Errorf("repository.Tx.DeleteOrganizationDemand: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repository.Tx.DeleteOrganizationDemand: %w", err)
	}
	return n > 0, nil
}
