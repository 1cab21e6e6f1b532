package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/fishnet-go/internal/datastore"
	"github.com/tphakala/fishnet-go/internal/logger"
)

// formValue returns a form or query value and whether the key was sent at all.
func formValue(c echo.Context, key string) (string, bool) {
	params, err := c.FormParams()
	if err != nil {
		return "", false
	}
	vals, ok := params[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return strings.TrimSpace(vals[0]), true
}

// required reads a non-empty parameter.
func required(c echo.Context, key string) (string, error) {
	v, _ := formValue(c, key)
	if v == "" {
		return "", badRequest("Missing " + key + " parameter")
	}
	return v, nil
}

func parseID(c echo.Context) (uint, error) {
	raw, err := required(c, "id")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("Invalid id parameter")
	}
	return uint(id), nil
}

// QueryRecentCaptures handles GET /db/query_fish_recent_capture.
func (s *Server) QueryRecentCaptures(c echo.Context) error {
	username, err := required(c, "username")
	if err != nil {
		return err
	}
	limit := datastore.DefaultRecentLimit
	if raw, ok := formValue(c, "limit"); ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return badRequest("Invalid limit parameter")
		}
		limit = min(n, datastore.MaxRecentLimit)
	}

	collections, err := s.db.RecentCaptures(c.Request().Context(), username, limit)
	if err != nil {
		return s.HandleError(c, err, "recent_captures")
	}
	if collections == nil {
		collections = []datastore.FishCollection{}
	}
	return success(c, http.StatusOK, collections)
}

// SearchFish handles GET /db/query_fish_for_search.
func (s *Server) SearchFish(c echo.Context) error {
	query, err := required(c, "q")
	if err != nil {
		return err
	}
	fish, err := s.db.SearchFish(c.Request().Context(), query)
	if err != nil {
		return s.HandleError(c, err, "search_fish")
	}
	if fish == nil {
		fish = []datastore.Fish{}
	}
	return success(c, http.StatusOK, fish)
}

// QueryCollections handles GET /db/query_fish_collection.
func (s *Server) QueryCollections(c echo.Context) error {
	username, err := required(c, "username")
	if err != nil {
		return err
	}
	collections, err := s.db.ListCollections(c.Request().Context(), username)
	if err != nil {
		return s.HandleError(c, err, "list_collections")
	}
	if collections == nil {
		collections = []datastore.FishCollection{}
	}
	return success(c, http.StatusOK, collections)
}

// QueryFishByLocalName handles GET /db/query_fish_by_local_name.
func (s *Server) QueryFishByLocalName(c echo.Context) error {
	name, err := required(c, "local_name")
	if err != nil {
		return err
	}
	fish, err := s.db.GetFishByLocalName(c.Request().Context(), name)
	if err != nil {
		return s.HandleError(c, err, "get_fish")
	}
	return success(c, http.StatusOK, fish)
}

// CreateCollection handles POST /db/create_fish_collection.
func (s *Server) CreateCollection(c echo.Context) error {
	username, err := required(c, "username")
	if err != nil {
		return err
	}
	localName, err := required(c, "local_name")
	if err != nil {
		return err
	}

	input := datastore.NewCollection{
		Username:  username,
		LocalName: localName,
	}
	input.CapturedLocation, _ = formValue(c, "captured_location")
	input.ImagePath, _ = formValue(c, "image_path")
	if raw, ok := formValue(c, "confidence_score"); ok && raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return badRequest("Invalid confidence_score parameter")
		}
		input.ConfidenceScore = &score
	}

	collection, err := s.db.CreateFishCollection(c.Request().Context(), input)
	if err != nil {
		return s.HandleError(c, err, "create_collection")
	}
	return success(c, http.StatusCreated, collection)
}

// DeleteCollection handles POST /db/delete_fish_collection.
func (s *Server) DeleteCollection(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	username, err := required(c, "username")
	if err != nil {
		return err
	}

	if err := s.db.DeleteFishCollection(c.Request().Context(), id, username); err != nil {
		return s.HandleError(c, err, "delete_collection")
	}
	return success(c, http.StatusOK, map[string]uint{"id": id})
}

// UpdateCollection handles POST /db/update_fish_collection.
func (s *Server) UpdateCollection(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	username, err := required(c, "username")
	if err != nil {
		return err
	}

	var update datastore.CollectionUpdate
	if v, ok := formValue(c, "captured_location"); ok {
		update.CapturedLocation = &v
	}
	if v, ok := formValue(c, "local_name"); ok && v != "" {
		update.LocalName = &v
	}

	collection, err := s.db.UpdateFishCollection(c.Request().Context(), id, username, update)
	if err != nil {
		return s.HandleError(c, err, "update_collection")
	}
	return success(c, http.StatusOK, collection)
}

// CreateUserProfile handles POST /db/create_user_profile.
func (s *Server) CreateUserProfile(c echo.Context) error {
	if params, err := c.FormParams(); err == nil {
		s.log.WithContext(c.Request().Context()).Debug("create user profile",
			logger.Any("form", logger.RedactFormValues(params)))
	}

	username, err := required(c, "username")
	if err != nil {
		return err
	}
	password, err := required(c, "password")
	if err != nil {
		return err
	}
	input := datastore.NewUser{Username: username, Password: password}
	input.Fullname, _ = formValue(c, "fullname")
	input.Email, _ = formValue(c, "email")

	user, err := s.db.CreateUserProfile(c.Request().Context(), input)
	if err != nil {
		return s.HandleError(c, err, "create_user")
	}
	return success(c, http.StatusCreated, user)
}

// DeleteFishImage handles POST /db/delete_fish_image. It removes the stored
// upload and its annotated copy.
func (s *Server) DeleteFishImage(c echo.Context) error {
	username, err := required(c, "username")
	if err != nil {
		return err
	}
	imagePath, err := required(c, "image_path")
	if err != nil {
		return err
	}

	if err := s.store.Remove(username, imagePath); err != nil {
		return s.HandleError(c, err, "delete_image")
	}
	return success(c, http.StatusOK, map[string]string{"image_path": imagePath})
}
