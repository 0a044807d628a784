package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lmslocal/lmslocal/internal/cache"
	"github.com/lmslocal/lmslocal/internal/game"
	"github.com/lmslocal/lmslocal/internal/httputil"
	"github.com/lmslocal/lmslocal/internal/middleware"
	"github.com/lmslocal/lmslocal/internal/service"
	"github.com/lmslocal/lmslocal/internal/store"
	"github.com/markbates/goth/gothic"
)

func newRouter(dbConn *sqlx.DB, sessionManager *scs.SessionManager) http.Handler {
	competitionStore := store.NewCompetitionStore(dbConn)
	roundStore := store.NewRoundStore(dbConn)
	pickStore := store.NewPickStore(dbConn)
	userStore := store.NewUserStore(dbConn)
	allowedCache := cache.NewMemoryStore()

	competitionService := service.NewCompetitionService(dbConn, competitionStore, roundStore, allowedCache)
	pickService := service.NewPickService(dbConn, competitionStore, roundStore, pickStore, allowedCache)
	resultService := service.NewResultService(dbConn, competitionStore, roundStore, pickStore, allowedCache)
	adminService := service.NewAdminService(dbConn, competitionStore, roundStore, pickStore, allowedCache)
	userService := service.NewUserService(dbConn, userStore)

	// Delegated capability flags live on the actor's competition_users
	// row; non-members act with an empty set.
	capsFor := func(ctx context.Context, competitionID, userID uuid.UUID) game.CapabilitySet {
		cu, err := competitionStore.GetCompetitionUser(ctx, competitionID, userID)
		if err != nil {
			return game.CapabilitySet{}
		}
		return cu.Capabilities()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(sessionManager.LoadAndSave)

	r.Get("/auth/{provider}", func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		r = r.WithContext(context.WithValue(r.Context(), "provider", provider))

		gothic.BeginAuthHandler(w, r)
	})

	r.Get("/auth/{provider}/callback", func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		r = r.WithContext(context.WithValue(r.Context(), "provider", provider))

		gothUser, err := gothic.CompleteUserAuth(w, r)
		if err != nil {
			httputil.BadRequest(w, "Authentication failure", err)
			return
		}

		user, err := userService.FindOrCreateUserByProvider(r.Context(), gothUser)
		if err != nil {
			httputil.InternalServerError(w, "Failed to find or create user", err)
			return
		}

		sessionManager.Put(r.Context(), "userID", user.ID.String())
		httputil.WriteJSON(w, http.StatusOK, user)
	})

	r.Post("/auth/guest", func(w http.ResponseWriter, r *http.Request) {
		user, err := userService.EnsureGuestUser(r.Context())
		if err != nil {
			httputil.InternalServerError(w, "Failed to login as guest", err)
			return
		}

		sessionManager.Put(r.Context(), "userID", user.ID.String())
		httputil.WriteJSON(w, http.StatusOK, user)
	})

	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		sessionManager.Destroy(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessionManager, userStore))

		r.Post("/competitions", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserIDFromContext(r.Context())

			var req struct {
				Name           string `json:"name"`
				LivesPerPlayer int    `json:"lives_per_player"`
				NoTeamTwice    bool   `json:"no_team_twice"`
				Teams          []struct {
					ShortName string `json:"short_name"`
					FullName  string `json:"full_name"`
				} `json:"teams"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}

			teams := make([]service.TeamInput, 0, len(req.Teams))
			for _, t := range req.Teams {
				teams = append(teams, service.TeamInput{ShortName: t.ShortName, FullName: t.FullName})
			}

			id, err := competitionService.CreateCompetition(r.Context(), userID, req.Name, req.LivesPerPlayer, req.NoTeamTwice, teams)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
		})

		r.Get("/competitions", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserIDFromContext(r.Context())
			competitions, err := competitionStore.GetCompetitionsByOrganizer(r.Context(), userID)
			if err != nil {
				httputil.InternalServerError(w, "Failed to get competitions", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, competitions)
		})

		r.Get("/competitions/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			competition, err := competitionStore.GetCompetition(r.Context(), id)
			if err != nil {
				httputil.NotFound(w, "Competition not found", err)
				return
			}
			teams, err := competitionStore.GetTeams(r.Context(), id)
			if err != nil {
				httputil.InternalServerError(w, "Failed to get teams", err)
				return
			}
			players, err := competitionStore.GetCompetitionUsers(r.Context(), id)
			if err != nil {
				httputil.InternalServerError(w, "Failed to get players", err)
				return
			}
			rounds, err := roundStore.GetRounds(r.Context(), id)
			if err != nil {
				httputil.InternalServerError(w, "Failed to get rounds", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]any{
				"competition": competition,
				"teams":       teams,
				"players":     players,
				"rounds":      rounds,
			})
		})

		r.Post("/competitions/{id}/start", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			userID, _ := middleware.GetUserIDFromContext(r.Context())
			if err := competitionService.StartCompetition(r.Context(), id, userID); err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/competitions/{id}/join", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			userID, _ := middleware.GetUserIDFromContext(r.Context())
			cu, err := competitionService.JoinCompetition(r.Context(), id, userID)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, cu)
		})

		r.Get("/competitions/{id}/allowed-teams", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			userID, _ := middleware.GetUserIDFromContext(r.Context())
			result, err := pickService.GetAllowedTeams(r.Context(), id, userID)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]any{
				"teams":     result.Teams,
				"was_reset": result.WasReset,
			})
		})

		r.Post("/competitions/{id}/rounds", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			userID, _ := middleware.GetUserIDFromContext(r.Context())

			var req struct {
				LockTime time.Time `json:"lock_time"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}

			round, err := competitionService.CreateRound(r.Context(), id, userID, capsFor(r.Context(), id, userID), req.LockTime)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, round)
		})

		r.Post("/competitions/{id}/evaluate", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			state, err := competitionService.EvaluateCompetitionState(r.Context(), id)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]any{
				"status":    state.Status,
				"winner_id": state.WinnerID,
				"is_draw":   state.IsDraw,
			})
		})

		r.Get("/competitions/{id}/audit", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			entries, err := competitionStore.GetAuditEntries(r.Context(), id)
			if err != nil {
				httputil.InternalServerError(w, "Failed to get audit log", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, entries)
		})

		r.Get("/rounds/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			round, err := roundStore.GetRound(r.Context(), id)
			if err != nil {
				httputil.NotFound(w, "Round not found", err)
				return
			}
			fixtures, err := roundStore.GetFixtures(r.Context(), id)
			if err != nil {
				httputil.InternalServerError(w, "Failed to get fixtures", err)
				return
			}

			// Picks stay hidden until the round locks
			var picks []game.Pick
			locked := game.PicksClosed(round, fixtures, time.Now())
			if locked {
				picks, err = pickStore.GetPicksByRound(r.Context(), id)
				if err != nil {
					httputil.InternalServerError(w, "Failed to get picks", err)
					return
				}
			}

			httputil.WriteJSON(w, http.StatusOK, map[string]any{
				"round":    round,
				"fixtures": fixtures,
				"locked":   locked,
				"picks":    picks,
			})
		})

		r.Post("/rounds/{id}/fixtures", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			userID, _ := middleware.GetUserIDFromContext(r.Context())

			var req struct {
				HomeTeam    string    `json:"home_team"`
				AwayTeam    string    `json:"away_team"`
				KickoffTime time.Time `json:"kickoff_time"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}

			round, err := roundStore.GetRound(r.Context(), id)
			if err != nil {
				httputil.NotFound(w, "Round not found", err)
				return
			}
			caps := capsFor(r.Context(), round.CompetitionID, userID)

			fixture, err := competitionService.AddFixture(r.Context(), id, userID, caps, req.HomeTeam, req.AwayTeam, req.KickoffTime)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, fixture)
		})

		r.Post("/fixtures/{id}/result", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			userID, _ := middleware.GetUserIDFromContext(r.Context())

			var req struct {
				Result game.FixtureResult `json:"result"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}

			fixture, err := roundStore.GetFixture(r.Context(), id)
			if err != nil {
				httputil.NotFound(w, "Fixture not found", err)
				return
			}
			round, err := roundStore.GetRound(r.Context(), fixture.RoundID)
			if err != nil {
				httputil.InternalServerError(w, "Failed to get round", err)
				return
			}
			caps := capsFor(r.Context(), round.CompetitionID, userID)

			if err := competitionService.SetFixtureResult(r.Context(), id, userID, caps, req.Result); err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/rounds/{id}/pick", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			userID, _ := middleware.GetUserIDFromContext(r.Context())

			var req struct {
				Team string `json:"team"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}

			pick, err := pickService.SetPick(r.Context(), userID, id, req.Team)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, pick)
		})

		r.Delete("/rounds/{id}/pick", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			userID, _ := middleware.GetUserIDFromContext(r.Context())

			result, err := pickService.UnselectPick(r.Context(), userID, id)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]bool{"removed": result.Removed})
		})

		r.Post("/rounds/{id}/process", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			userID, _ := middleware.GetUserIDFromContext(r.Context())

			round, err := roundStore.GetRound(r.Context(), id)
			if err != nil {
				httputil.NotFound(w, "Round not found", err)
				return
			}
			caps := capsFor(r.Context(), round.CompetitionID, userID)

			summary, err := resultService.ProcessRoundResults(r.Context(), id, userID, caps)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]int{
				"players_affected": summary.PlayersAffected,
				"eliminated_count": summary.EliminatedCount,
				"survivor_count":   summary.SurvivorCount,
			})
		})

		r.Post("/rounds/{id}/reprocess", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			userID, _ := middleware.GetUserIDFromContext(r.Context())

			round, err := roundStore.GetRound(r.Context(), id)
			if err != nil {
				httputil.NotFound(w, "Round not found", err)
				return
			}
			caps := capsFor(r.Context(), round.CompetitionID, userID)

			summary, err := resultService.ReprocessRound(r.Context(), id, userID, caps)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]int{
				"players_affected": summary.PlayersAffected,
				"eliminated_count": summary.EliminatedCount,
				"survivor_count":   summary.SurvivorCount,
			})
		})

		r.Post("/competitions/{id}/players/{userID}/pick", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			playerID, ok := parseIDParam(w, r, "userID")
			if !ok {
				return
			}
			actorID, _ := middleware.GetUserIDFromContext(r.Context())

			var req struct {
				Team string `json:"team"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}

			result, err := adminService.AdminSetPick(r.Context(), id, actorID, capsFor(r.Context(), id, actorID), playerID, req.Team)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]any{
				"pick":    result.Pick,
				"removed": result.Removed,
			})
		})

		r.Post("/competitions/{id}/players/{userID}/lives", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			playerID, ok := parseIDParam(w, r, "userID")
			if !ok {
				return
			}
			actorID, _ := middleware.GetUserIDFromContext(r.Context())

			var req struct {
				Operation string `json:"operation"`
				Amount    int    `json:"amount"`
				Reason    string `json:"reason"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}

			change, err := adminService.UpdatePlayerLives(r.Context(), id, actorID, capsFor(r.Context(), id, actorID), playerID, service.LivesOperation(req.Operation), req.Amount, req.Reason)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]int{
				"old_lives": change.OldLives,
				"new_lives": change.NewLives,
			})
		})

		r.Post("/competitions/{id}/players/{userID}/status", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			playerID, ok := parseIDParam(w, r, "userID")
			if !ok {
				return
			}
			actorID, _ := middleware.GetUserIDFromContext(r.Context())

			var req struct {
				Status game.PlayerStatus `json:"status"`
				Reason string            `json:"reason"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}

			if err := adminService.UpdatePlayerStatus(r.Context(), id, actorID, capsFor(r.Context(), id, actorID), playerID, req.Status, req.Reason); err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/competitions/{id}/players/{userID}/history", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIDParam(w, r, "id")
			if !ok {
				return
			}
			playerID, ok := parseIDParam(w, r, "userID")
			if !ok {
				return
			}
			history, err := pickStore.GetProgressByUser(r.Context(), id, playerID)
			if err != nil {
				httputil.InternalServerError(w, "Failed to get history", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, history)
		})
	})

	return r
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.BadRequest(w, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}
