package main

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/internal/service"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		userID string
		role   string
		email  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "mint an access token for scripted API calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := models.UserRole(role)
			switch r {
			case models.RoleAdmin, models.RolePlanner, models.RoleViewer:
			default:
				return fmt.Errorf("--role must be ADMIN, PLANNER or VIEWER")
			}
			now := time.Now()
			claims := &models.JWTClaims{
				UserID: userID,
				Role:   r,
				Email:  email,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   userID,
					Issuer:    a.cfg.JWT.Issuer,
					Audience:  jwt.ClaimStrings(a.cfg.JWT.Audience),
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
			}
			validator := service.NewTokenValidator(service.TokenValidatorConfig{
				Secret:   a.cfg.JWT.Secret,
				Issuer:   a.cfg.JWT.Issuer,
				Audience: a.cfg.JWT.Audience,
			})
			token, err := validator.IssueToken(claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli", "user ID carried by the token")
	cmd.Flags().StringVar(&role, "role", string(models.RolePlanner), "ADMIN, PLANNER or VIEWER")
	cmd.Flags().StringVar(&email, "email", "", "email carried by the token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
