package service

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrelief/internal/cache"
	"medrelief/internal/models"
)

func randomTeam(name string, phones ...string) models.Team {
	qr := gofakeit.URL()
	team := models.Team{
		Type:         "物资运输",
		Name:         name,
		Address:      gofakeit.Street(),
		MainText:     gofakeit.Sentence(8),
		WechatQRCode: &qr,
	}
	for _, phone := range phones {
		team.Contacts = append(team.Contacts, models.TeamContact{Name: gofakeit.Name(), Phone: phone})
	}
	return team
}

func teamPhones(team models.Team) []string {
	phones := []string{}
	for _, c := range team.Contacts {
		phones = append(phones, c.Phone)
	}
	return phones
}

func TestSubmitTeam(t *testing.T) {
	ctx := context.Background()
	svc, store, inv := newTestService(t)
	u1 := store.addUser("13800000001")
	u2 := store.addUser("13800000002")

	created, err := svc.SubmitTeam(ctx, u1, randomTeam("江城车队", "13900000001", ""))
	require.NoError(t, err)
	assert.False(t, created.Verified)
	assert.Equal(t, uuid.NullUUID{UUID: u1, Valid: true}, created.Inspector)
	assert.Equal(t, []string{"13900000001"}, teamPhones(created))
	assert.Equal(t, []string{cache.PrefixTeam}, inv.calls())
	assert.Equal(t, "team:江城车队", store.locked[0])

	t.Run("own unverified is replaced", func(t *testing.T) {
		replaced, err := svc.SubmitTeam(ctx, u1, randomTeam("江城车队", "13900000002"))
		require.NoError(t, err)
		assert.NotEqual(t, created.Id, replaced.Id)
		assert.Equal(t, []string{"13900000002"}, teamPhones(replaced))
		created = replaced
	})

	t.Run("own verified is merged", func(t *testing.T) {
		_, err := svc.SetTeamVerified(ctx, created.Id, true)
		require.NoError(t, err)

		sub := randomTeam("江城车队", "13900000003")
		merged, err := svc.SubmitTeam(ctx, u1, sub)
		require.NoError(t, err)
		assert.Equal(t, created.Id, merged.Id)
		assert.Equal(t, sub.Address, merged.Address)
		assert.Equal(t, sub.WechatQRCode, merged.WechatQRCode)
		assert.ElementsMatch(t, []string{"13900000002", "13900000003"}, teamPhones(merged))
	})

	t.Run("merge keeps omitted fields", func(t *testing.T) {
		_, err := svc.SetTeamVerified(ctx, created.Id, true)
		require.NoError(t, err)
		before, err := svc.GetTeam(ctx, created.Id)
		require.NoError(t, err)

		sub := models.Team{Name: "江城车队", Supplied: models.Fields{models.FieldMainText: true}, MainText: "夜间接送医护"}
		merged, err := svc.SubmitTeam(ctx, u1, sub)
		require.NoError(t, err)
		assert.Equal(t, created.Id, merged.Id)
		assert.Equal(t, before.Type, merged.Type)
		assert.Equal(t, before.Address, merged.Address)
		assert.Equal(t, before.WechatQRCode, merged.WechatQRCode)
		assert.Equal(t, "夜间接送医护", merged.MainText)
	})

	t.Run("other owner is discarded", func(t *testing.T) {
		inv.reset()
		before, err := svc.GetTeam(ctx, created.Id)
		require.NoError(t, err)

		got, err := svc.SubmitTeam(ctx, u2, randomTeam("江城车队", "13900000004"))
		require.NoError(t, err)
		assert.Equal(t, before, got)
		assert.Empty(t, inv.calls())
	})
}

func TestSubmitTeamRollsBack(t *testing.T) {
	ctx := context.Background()
	svc, store, inv := newTestService(t)
	u1 := store.addUser("13800000001")
	store.failPhone = "13900000001"

	_, err := svc.SubmitTeam(ctx, u1, randomTeam("江城车队", "13900000001"))
	require.ErrorIs(t, err, errInjected)

	teams, err := svc.GetTeams(ctx, uuid.NullUUID{}, models.TeamQuery{})
	require.NoError(t, err)
	assert.Empty(t, teams)
	assert.Empty(t, inv.calls())
}

func TestUpdateTeam(t *testing.T) {
	ctx := context.Background()
	svc, store, inv := newTestService(t)
	u1 := store.addUser("13800000001")
	u2 := store.addUser("13800000002")

	team, err := svc.SubmitTeam(ctx, u1, randomTeam("江城车队", "13900000001", "13900000002"))
	require.NoError(t, err)

	inv.reset()
	got, err := svc.UpdateTeam(ctx, u2, team.Id, randomTeam("别人的车队"))
	require.NoError(t, err)
	assert.Equal(t, "江城车队", got.Name)
	assert.Empty(t, inv.calls())

	upd := randomTeam("江城志愿车队", "13900000002")
	upd.WechatQRCode = nil
	got, err = svc.UpdateTeam(ctx, u1, team.Id, upd)
	require.NoError(t, err)
	assert.Equal(t, team.Id, got.Id)
	assert.Equal(t, "江城志愿车队", got.Name)
	assert.Nil(t, got.WechatQRCode)
	assert.False(t, got.Verified)
	assert.Equal(t, []string{"13900000002"}, teamPhones(got))
	assert.Equal(t, []string{cache.PrefixTeam}, inv.calls())

	_, err = svc.SetTeamVerified(ctx, team.Id, true)
	require.NoError(t, err)
	got, err = svc.UpdateTeam(ctx, u1, team.Id, models.Team{Name: "江城志愿车队", Supplied: models.Fields{}})
	require.NoError(t, err)
	assert.Equal(t, upd.Address, got.Address)
	assert.Equal(t, upd.MainText, got.MainText)
	assert.False(t, got.Verified, "an edited team needs another inspection")

	_, err = svc.UpdateTeam(ctx, u1, uuid.New(), upd)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTeamContactsAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	u1 := store.addUser("13800000001")
	u2 := store.addUser("13800000002")

	team, err := svc.SubmitTeam(ctx, u1, randomTeam("江城车队"))
	require.NoError(t, err)

	_, err = svc.AddTeamContact(ctx, u2, team.Id, models.TeamContact{Name: "李师傅", Phone: "13900000001"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	contact, err := svc.AddTeamContact(ctx, u1, team.Id, models.TeamContact{Name: "李师傅", Phone: "13900000001"})
	require.NoError(t, err)
	assert.Equal(t, team.Id, contact.TeamId)

	require.NoError(t, svc.DeleteTeamContact(ctx, u1, team.Id, contact.Id))
	assert.ErrorIs(t, svc.DeleteTeamContact(ctx, u1, team.Id, contact.Id), models.ErrNotFound)

	assert.ErrorIs(t, svc.DeleteTeam(ctx, u2, team.Id), models.ErrForbidden)
	require.NoError(t, svc.DeleteTeam(ctx, u1, team.Id))
	_, err = svc.GetTeam(ctx, team.Id)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetTeamsMine(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	u1 := store.addUser("13800000001")
	u2 := store.addUser("13800000002")

	_, err := svc.SubmitTeam(ctx, u1, randomTeam("江城车队"))
	require.NoError(t, err)
	_, err = svc.SubmitTeam(ctx, u2, randomTeam("汉阳车队"))
	require.NoError(t, err)

	_, err = svc.GetTeams(ctx, uuid.NullUUID{}, models.TeamQuery{Mine: true})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	teams, err := svc.GetTeams(ctx, uuid.NullUUID{UUID: u2, Valid: true}, models.TeamQuery{Mine: true})
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "汉阳车队", teams[0].Name)
}
