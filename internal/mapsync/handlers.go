package mapsync

import (
	"errors"

	"backend-alluviamaps/internal/records"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/paulmach/orb"
)

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

type opacityRequest struct {
	Opacity *float64 `json:"opacity"`
}

type cameraRequest struct {
	Lng  float64 `json:"lng"`
	Lat  float64 `json:"lat"`
	Zoom float64 `json:"zoom"`
}

type sessionResponse struct {
	ID       string   `json:"id"`
	State    State    `json:"state"`
	Document Document `json:"document"`
}

func RegisterRoutes(r fiber.Router, sessions *Sessions, data *records.DataService) {
	r.Post("/", func(c *fiber.Ctx) error {
		sess, err := sessions.Open()
		if err != nil {
			_ = sessions.Close(sess.ID)
			if errors.Is(err, ErrNoAccessToken) {
				return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(describe(sess))
	})

	r.Get("/:id", withSession(sessions, func(c *fiber.Ctx, sess *Session) error {
		return c.JSON(describe(sess))
	}))

	r.Post("/:id/ready", withSession(sessions, func(c *fiber.Ctx, sess *Session) error {
		if err := sessions.MarkStyleLoaded(sess.ID); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"state": sess.Controller.State()})
	}))

	r.Post("/:id/refresh", withSession(sessions, func(c *fiber.Ctx, sess *Session) error {
		ctx := c.Context()
		var (
			trails []records.Trail
			sites  []records.Site
		)
		if c.Query("north") != "" {
			b, err := records.BoundsFromQuery(c)
			if err != nil {
				return err
			}
			in := data.FetchInBounds(ctx, b)
			trails, sites = in.Trails, in.Sites
		} else {
			useCache := c.QueryBool("cache", true)
			trails = data.FetchTrails(ctx, useCache)
			sites = data.FetchSites(ctx, useCache)
		}
		sess.Controller.AttachTrails(trails)
		sess.Controller.AttachSites(sites)
		return c.JSON(fiber.Map{
			"state":  sess.Controller.State(),
			"trails": len(trails),
			"sites":  len(sites),
		})
	}))

	r.Put("/:id/layers/:layer/visibility", withSession(sessions, func(c *fiber.Ctx, sess *Session) error {
		var req visibilityRequest
		if err := c.BodyParser(&req); err != nil || req.Visible == nil {
			return fiber.NewError(fiber.StatusBadRequest, "visible required")
		}
		sess.Controller.SetLayerVisibility(layerParam(c), *req.Visible)
		return c.SendStatus(fiber.StatusNoContent)
	}))

	r.Put("/:id/layers/:layer/opacity", withSession(sessions, func(c *fiber.Ctx, sess *Session) error {
		var req opacityRequest
		if err := c.BodyParser(&req); err != nil || req.Opacity == nil {
			return fiber.NewError(fiber.StatusBadRequest, "opacity required")
		}
		sess.Controller.SetLayerOpacity(layerParam(c), *req.Opacity)
		return c.SendStatus(fiber.StatusNoContent)
	}))

	r.Post("/:id/camera", withSession(sessions, func(c *fiber.Ctx, sess *Session) error {
		var req cameraRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
			return fiber.NewError(fiber.StatusBadRequest, "coordinates out of range")
		}
		sess.Controller.PanTo(orb.Point{req.Lng, req.Lat}, req.Zoom)
		return c.SendStatus(fiber.StatusAccepted)
	}))

	r.Get("/:id/bounds", withSession(sessions, func(c *fiber.Ctx, sess *Session) error {
		b, ok := sess.Controller.Bounds()
		if !ok {
			return fiber.NewError(fiber.StatusConflict, "map not ready")
		}
		return c.JSON(b)
	}))

	r.Delete("/:id", func(c *fiber.Ctx) error {
		if err := sessions.Close(c.Params("id")); err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func withSession(sessions *Sessions, h func(*fiber.Ctx, *Session) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := sessions.Get(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return h(c, sess)
	}
}

// layerParam copies the layer id out of the request buffer: calls made
// before the style loads keep it in the controller queue past the request.
func layerParam(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("layer"))
}

func describe(sess *Session) sessionResponse {
	resp := sessionResponse{ID: sess.ID, State: sess.Controller.State()}
	if surface := sess.Surface(); surface != nil {
		resp.Document = surface.Snapshot()
	}
	return resp
}
