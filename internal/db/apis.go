package db

import (
	"database/sql"
	"errors"
	"strings"
)

// enabledCutoffSeconds is how long a non-permanent message keeps receiving
// updates after it was added (or last re-enabled)
const enabledCutoffSeconds = 24 * 60 * 60

// GetAuthState gets the OAuth state token of a user with the given ID,
// creating one if none exists yet; a state collision with a concurrent
// insert is retried with a fresh UUID and never surfaces
func (d *DB) GetAuthState(userID int64) (string, error) {
	var state string
	err := d.withConn(func(conn *sql.Conn) error {
		for {
			err := conn.QueryRowContext(d.ctx,
				`SELECT state FROM auth_states WHERE telegram_user = ?`, userID).Scan(&state)
			if err == nil {
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}

			state = d.newState()
			_, err = conn.ExecContext(d.ctx,
				`INSERT INTO auth_states (telegram_user, state) VALUES (?, ?)`, userID, state)
			if err == nil {
				return nil
			}
			if !isUniqueViolation(err) {
				return err
			}
			// either the UUID collided (regenerate) or another insert won the
			// race on telegram_user (re-read); loop handles both
		}
	})
	return state, err
}

// GetUserIDByAuthState resolves the user ID an OAuth state token belongs to
func (d *DB) GetUserIDByAuthState(state string) (int64, error) {
	var userID int64
	err := d.withConn(func(conn *sql.Conn) error {
		err := conn.QueryRowContext(d.ctx,
			`SELECT telegram_user FROM auth_states WHERE state = ?`, state).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAuthStateNotFound
		}
		return err
	})
	return userID, err
}

// DeleteAuthState deletes the OAuth state token of a user with the given ID
func (d *DB) DeleteAuthState(userID int64) error {
	return d.withConn(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(d.ctx,
			`DELETE FROM auth_states WHERE telegram_user = ?`, userID)
		return err
	})
}

// GetSpotifyUser gets the Spotify credential of a user with the given ID
func (d *DB) GetSpotifyUser(userID int64) (SpotifyUser, error) {
	var u SpotifyUser
	err := d.withConn(func(conn *sql.Conn) error {
		err := conn.QueryRowContext(d.ctx,
			`SELECT telegram_user, language_code, access_token, token_type, scope, expiry_date, refresh_token
			FROM spotify_users WHERE telegram_user = ? LIMIT 1`, userID).
			Scan(&u.TelegramUserID, &u.LanguageCode, &u.AccessToken, &u.TokenType, &u.Scope, &u.ExpiryDate, &u.RefreshToken)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	})
	return u, err
}

// PutSpotifyUser upserts the given Spotify credential; the update only
// applies when the incoming expiry is strictly later than the stored one
// (out-of-order refresh completions lose), and an empty incoming refresh
// token never erases a stored one.
// NOTE: the strictly-later gate also drops a refresh whose computed expiry is
// not later than the stored one (clock skew, unusually short-lived token);
// that matches the shipped behavior and is kept on purpose.
func (d *DB) PutSpotifyUser(user SpotifyUser) error {
	return d.withConn(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(d.ctx,
			`INSERT INTO spotify_users
				(telegram_user, language_code, access_token, token_type, scope, expiry_date, refresh_token)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (telegram_user) DO UPDATE SET
				language_code = excluded.language_code,
				access_token = excluded.access_token,
				token_type = excluded.token_type,
				scope = excluded.scope,
				expiry_date = excluded.expiry_date,
				refresh_token = CASE WHEN excluded.refresh_token = ''
					THEN spotify_users.refresh_token ELSE excluded.refresh_token END
			WHERE excluded.expiry_date > spotify_users.expiry_date`,
			user.TelegramUserID, user.LanguageCode, user.AccessToken, user.TokenType,
			user.Scope, user.ExpiryDate, user.RefreshToken)
		return err
	})
}

// DeleteSpotifyUser deletes the Spotify credential of a user with the given ID
func (d *DB) DeleteSpotifyUser(userID int64) error {
	return d.withConn(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(d.ctx,
			`DELETE FROM spotify_users WHERE telegram_user = ?`, userID)
		return err
	})
}

// GetUsersRequiringRefresh gets the users whose credential has expired
func (d *DB) GetUsersRequiringRefresh() ([]SpotifyUser, error) {
	return d.getUsersWhereExpiry(`expiry_date <= ?`)
}

// GetUsersWithValidAccess gets the users whose credential is still valid
func (d *DB) GetUsersWithValidAccess() ([]SpotifyUser, error) {
	return d.getUsersWhereExpiry(`expiry_date > ?`)
}

func (d *DB) getUsersWhereExpiry(cond string) ([]SpotifyUser, error) {
	var users []SpotifyUser
	err := d.withConn(func(conn *sql.Conn) error {
		users = users[:0]
		rows, err := conn.QueryContext(d.ctx,
			`SELECT telegram_user, language_code, access_token, token_type, scope, expiry_date, refresh_token
			FROM spotify_users WHERE `+cond, d.now())
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u SpotifyUser
			if err = rows.Scan(&u.TelegramUserID, &u.LanguageCode, &u.AccessToken, &u.TokenType,
				&u.Scope, &u.ExpiryDate, &u.RefreshToken); err != nil {
				return err
			}
			users = append(users, u)
		}
		return rows.Err()
	})
	return users, err
}

// GetAllUserIDs gets the IDs of all users with a stored credential
func (d *DB) GetAllUserIDs() ([]int64, error) {
	var userIDs []int64
	err := d.withConn(func(conn *sql.Conn) error {
		userIDs = userIDs[:0]
		rows, err := conn.QueryContext(d.ctx, `SELECT telegram_user FROM spotify_users`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var userID int64
			if err = rows.Scan(&userID); err != nil {
				return err
			}
			userIDs = append(userIDs, userID)
		}
		return rows.Err()
	})
	return userIDs, err
}

// GetPlayingData gets the last known playback state of a user with the given ID
func (d *DB) GetPlayingData(userID int64) (PlayingData, error) {
	var p PlayingData
	err := d.withConn(func(conn *sql.Conn) error {
		err := conn.QueryRowContext(d.ctx,
			`SELECT telegram_user, track_name, track_artist, track_url, last_checked, playing
			FROM playing_data WHERE telegram_user = ? LIMIT 1`, userID).
			Scan(&p.TelegramUserID, &p.TrackName, &p.TrackArtist, &p.TrackURL, &p.LastChecked, &p.Playing)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPlayingDataNotFound
		}
		return err
	})
	return p, err
}

// PutPlayingData upserts the given playback state
func (d *DB) PutPlayingData(data PlayingData) error {
	return d.withConn(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(d.ctx,
			`INSERT OR REPLACE INTO playing_data
				(telegram_user, track_name, track_artist, track_url, last_checked, playing)
			VALUES (?, ?, ?, ?, ?, ?)`,
			data.TelegramUserID, data.TrackName, data.TrackArtist, data.TrackURL,
			data.LastChecked, data.Playing)
		return err
	})
}

// DeletePlayingData deletes the playback state of a user with the given ID
func (d *DB) DeletePlayingData(userID int64) error {
	return d.withConn(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(d.ctx,
			`DELETE FROM playing_data WHERE telegram_user = ?`, userID)
		return err
	})
}

const messageColumns = `id, telegram_user, inline_message_id, time_added, enabled, permanent`

// GetMessages gets all now-listening messages of a user with the given ID
func (d *DB) GetMessages(userID int64) ([]NowListeningMessage, error) {
	return d.getMessagesWhere(`telegram_user = ?`, userID)
}

// GetEnabledMessages gets the now-listening messages of a user with the given
// ID that still receive updates
func (d *DB) GetEnabledMessages(userID int64) ([]NowListeningMessage, error) {
	return d.getMessagesWhere(`telegram_user = ? AND enabled = 1`, userID)
}

// GetExpiredEnabledMessages gets all enabled non-permanent messages older
// than the enabled cutoff
func (d *DB) GetExpiredEnabledMessages() ([]NowListeningMessage, error) {
	return d.getMessagesWhere(`enabled = 1 AND time_added < ? AND permanent = 0`,
		d.now()-enabledCutoffSeconds)
}

func (d *DB) getMessagesWhere(cond string, args ...interface{}) ([]NowListeningMessage, error) {
	var messages []NowListeningMessage
	err := d.withConn(func(conn *sql.Conn) error {
		messages = messages[:0]
		rows, err := conn.QueryContext(d.ctx,
			`SELECT `+messageColumns+` FROM now_listening_messages WHERE `+cond, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m NowListeningMessage
			if err = rows.Scan(&m.ID, &m.TelegramUserID, &m.InlineMessageID,
				&m.TimeAdded, &m.Enabled, &m.Permanent); err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return rows.Err()
	})
	return messages, err
}

// GetMessage gets one now-listening message by its owner and inline message ID
func (d *DB) GetMessage(userID int64, inlineMessageID string) (NowListeningMessage, error) {
	var m NowListeningMessage
	err := d.withConn(func(conn *sql.Conn) error {
		err := conn.QueryRowContext(d.ctx,
			`SELECT `+messageColumns+` FROM now_listening_messages
			WHERE telegram_user = ? AND inline_message_id = ? LIMIT 1`,
			userID, inlineMessageID).
			Scan(&m.ID, &m.TelegramUserID, &m.InlineMessageID, &m.TimeAdded, &m.Enabled, &m.Permanent)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMessageNotFound
		}
		return err
	})
	return m, err
}

// AddMessage adds a now-listening message for a user; re-adding the same
// inline message replaces the stored row
func (d *DB) AddMessage(userID int64, inlineMessageID string, permanent bool) error {
	return d.withConn(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(d.ctx,
			`INSERT OR REPLACE INTO now_listening_messages
				(telegram_user, inline_message_id, time_added, permanent)
			VALUES (?, ?, ?, ?)`,
			userID, inlineMessageID, d.now(), permanent)
		return err
	})
}

// EnableMessage re-enables the given message and refreshes its added time,
// restarting the enabled cutoff
func (d *DB) EnableMessage(message NowListeningMessage) error {
	return d.withConn(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(d.ctx,
			`UPDATE now_listening_messages SET enabled = 1, time_added = ?
			WHERE telegram_user = ? AND inline_message_id = ?`,
			d.now(), message.TelegramUserID, message.InlineMessageID)
		return err
	})
}

// DisableMessages disables the given messages in one statement
func (d *DB) DisableMessages(messages []NowListeningMessage) error {
	if len(messages) == 0 {
		return nil
	}
	args := make([]interface{}, len(messages))
	for i, m := range messages {
		args[i] = m.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messages)), ",")

	return d.withConn(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(d.ctx,
			`UPDATE now_listening_messages SET enabled = 0 WHERE id IN (`+placeholders+`)`, args...)
		return err
	})
}

// DeleteMessage deletes one now-listening message
func (d *DB) DeleteMessage(message NowListeningMessage) error {
	return d.withConn(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(d.ctx,
			`DELETE FROM now_listening_messages WHERE telegram_user = ? AND inline_message_id = ?`,
			message.TelegramUserID, message.InlineMessageID)
		return err
	})
}

// DeleteAllMessages deletes all now-listening messages of a user with the given ID
func (d *DB) DeleteAllMessages(userID int64) error {
	return d.withConn(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(d.ctx,
			`DELETE FROM now_listening_messages WHERE telegram_user = ?`, userID)
		return err
	})
}
