package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

type categoryRequest struct {
	Label string `json:"label"`
}

type brandRequest struct {
	Name string `json:"name"`
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

func (h *Handler) listProducts(c *gin.Context) {
	filter := models.ProductFilter{
		Category: c.Query("category"),
		Brand:    c.Query("brand"),
	}
	if raw := c.Query("available"); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(c, models.Validationf("available must be a boolean"))
			return
		}
		filter.Available = &available
	}

	products, err := h.catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var patch models.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// setAvailability sets the flag from the body, or flips it when the body is empty
func (h *Handler) setAvailability(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	product, err := h.catalog.SetAvailability(c.Request.Context(), c.Param("id"), req.Available)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.taxonomy.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *Handler) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	category, err := h.taxonomy.CreateCategory(c.Request.Context(), req.Label)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *Handler) updateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	category, err := h.taxonomy.UpdateCategory(c.Request.Context(), c.Param("id"), req.Label)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *Handler) deleteCategory(c *gin.Context) {
	if err := h.taxonomy.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) listBrands(c *gin.Context) {
	brands, err := h.taxonomy.ListBrands(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, brands)
}

func (h *Handler) createBrand(c *gin.Context) {
	var req brandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	brand, err := h.taxonomy.CreateBrand(c.Request.Context(), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, brand)
}

func (h *Handler) updateBrand(c *gin.Context) {
	var req brandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	brand, err := h.taxonomy.UpdateBrand(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, brand)
}

func (h *Handler) deleteBrand(c *gin.Context) {
	if err := h.taxonomy.DeleteBrand(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// uploadImage stores the multipart "file" field
func (h *Handler) uploadImage(c *gin.Context) {
	if !h.uploader.Enabled() {
		h.respondError(c, models.ErrMediaDisabled)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer file.Close()

	uploaded, err := h.uploader.Upload(c.Request.Context(), file)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, uploaded)
}

func (h *Handler) deleteImage(c *gin.Context) {
	publicID := strings.TrimPrefix(c.Param("publicId"), "/")
	if err := h.uploader.Destroy(c.Request.Context(), publicID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
